package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/unifiedinbox/mailsync/interfaces"
	"github.com/unifiedinbox/mailsync/internal/models"
)

type Repositories struct {
	db *gorm.DB

	AccountRepository    interfaces.AccountRepository
	ThreadRepository     interfaces.ThreadRepository
	MessageRepository    interfaces.MessageRepository
	AttachmentRepository interfaces.AttachmentRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:                   db,
		AccountRepository:    NewAccountRepository(db),
		ThreadRepository:     NewThreadRepository(db),
		MessageRepository:    NewMessageRepository(db),
		AttachmentRepository: NewAttachmentRepository(db),
	}
}

// InTransaction runs fn against transaction-scoped repositories. Either
// every write inside fn lands or none does. Repositories assembled without
// a database handle run fn against the receiver directly.
func (r *Repositories) InTransaction(ctx context.Context, fn func(txRepos *Repositories) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(InitRepositories(tx))
	})
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.Thread{},
		&models.Message{},
		&models.Attachment{},
	)
}
