package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestBindingCreate_DuplicateKeyBecomesConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBindingRepository(db)

	// red_packet_id 唯一约束被占位（含 claimed 红包保留的历史绑定行）
	mock.ExpectExec("INSERT INTO `gift_bindings`").
		WillReturnError(&mysql.MySQLError{
			Number:  1062,
			Message: "Duplicate entry '2' for key 'uq_gift_bindings_packet'",
		})

	err := repo.Create(context.Background(), nil, 1, 2)
	assert.ErrorIs(t, err, ErrBindingConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBindingCreate_OtherErrorsPassThrough(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBindingRepository(db)

	cause := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO `gift_bindings`").WillReturnError(cause)

	err := repo.Create(context.Background(), nil, 1, 2)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrBindingConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBindingCreate_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBindingRepository(db)

	mock.ExpectExec("INSERT INTO `gift_bindings`").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), nil, 1, 2)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
