package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestAutoMigrate_RunsEveryStatement(t *testing.T) {
	req := require.New(t)
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	req.NoError(err)
	defer conn.Close()

	for _, stmt := range schema {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	req.NoError((&Database{Conn: conn}).AutoMigrate(context.Background()))
	req.NoError(mock.ExpectationsWereMet())
}

func TestAutoMigrate_StopsOnFailure(t *testing.T) {
	req := require.New(t)
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	req.NoError(err)
	defer conn.Close()

	mock.ExpectExec(schema[0]).WillReturnError(errors.New("permission denied"))

	err = (&Database{Conn: conn}).AutoMigrate(context.Background())
	req.ErrorContains(err, "permission denied")
	req.NoError(mock.ExpectationsWereMet())
}
