package repositories

import "blogapi/internal/dbx"

// Manager vends repositories bound to a DBTX, so the same repository code
// runs against the pool or inside a transaction.
type Manager interface {
	Users(db dbx.DBTX) UserRepository
	AccessTokens(db dbx.DBTX) AccessTokenRepository
	PasswordResets(db dbx.DBTX) PasswordResetRepository
	Posts(db dbx.DBTX) PostRepository
	Comments(db dbx.DBTX) CommentRepository
}

type PostgresManager struct{}

func NewPostgresManager() *PostgresManager {
	return &PostgresManager{}
}

func (m *PostgresManager) Users(db dbx.DBTX) UserRepository {
	return NewUserRepository(db)
}

func (m *PostgresManager) AccessTokens(db dbx.DBTX) AccessTokenRepository {
	return NewAccessTokenRepository(db)
}

func (m *PostgresManager) PasswordResets(db dbx.DBTX) PasswordResetRepository {
	return NewPasswordResetRepository(db)
}

func (m *PostgresManager) Posts(db dbx.DBTX) PostRepository {
	return NewPostRepository(db)
}

func (m *PostgresManager) Comments(db dbx.DBTX) CommentRepository {
	return NewCommentRepository(db)
}
