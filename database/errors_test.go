package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	bizerrors "github.com/aisgo/ais-workspace/errors"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bizerrors.ErrorCode
	}{
		{"not found", gorm.ErrRecordNotFound, bizerrors.ErrCodeNotFound},
		{"duplicate", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), bizerrors.ErrCodeAlreadyExists},
		{"deadline", context.DeadlineExceeded, bizerrors.ErrCodeBackendUnavailable},
		{"canceled", context.Canceled, bizerrors.ErrCodeCanceled},
		{"bad conn", driver.ErrBadConn, bizerrors.ErrCodeBackendUnavailable},
		{"pg connection", &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, bizerrors.ErrCodeBackendUnavailable},
		{"pg serialization", &pgconn.PgError{Code: pgerrcode.SerializationFailure}, bizerrors.ErrCodeBackendUnavailable},
		{"pg admin shutdown", &pgconn.PgError{Code: pgerrcode.AdminShutdown}, bizerrors.ErrCodeBackendUnavailable},
		{"pg unique", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, bizerrors.ErrCodeAlreadyExists},
		{"pg syntax", &pgconn.PgError{Code: pgerrcode.SyntaxError}, bizerrors.ErrCodeInternal},
		{"mysql deadlock", &mysqldriver.MySQLError{Number: 1213}, bizerrors.ErrCodeBackendUnavailable},
		{"mysql duplicate", &mysqldriver.MySQLError{Number: 1062}, bizerrors.ErrCodeAlreadyExists},
		{"mysql unknown column", &mysqldriver.MySQLError{Number: 1054}, bizerrors.ErrCodeInternal},
		{"sqlite busy", errors.New("database is locked"), bizerrors.ErrCodeBackendUnavailable},
		{"plain", errors.New("boom"), bizerrors.ErrCodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyError(tc.err)
			if bizerrors.Code(got) != tc.want {
				t.Fatalf("ClassifyError(%v) code = %v, want %v", tc.err, bizerrors.Code(got), tc.want)
			}
		})
	}
}

func TestClassifyErrorKeepsBizError(t *testing.T) {
	if got := ClassifyError(bizerrors.ErrCrossTenantWriteRejected); got != bizerrors.ErrCrossTenantWriteRejected {
		t.Fatalf("expected biz error unchanged, got %v", got)
	}
	if ClassifyError(nil) != nil {
		t.Fatalf("expected nil")
	}
}
