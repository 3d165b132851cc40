package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	bizerrors "github.com/aisgo/ais-workspace/errors"
)

/* ========================================================================
 * Backend Error Classification
 * ========================================================================
 * 职责: 将驱动错误归类为业务错误码
 *   - 连接 / 资源 / 事务冲突 -> BackendUnavailable (可重试)
 *   - 记录不存在 -> NotFound; 唯一键冲突 -> AlreadyExists
 *   - 其他确定性错误 -> Internal (不重试)
 * ======================================================================== */

// MySQL 可重试错误号
const (
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlock         = 1213
	mysqlTooManyConns     = 1040
	mysqlServerShutdown   = 1053
	mysqlDuplicateEntry   = 1062
	mysqlQueryInterrupted = 1317
)

// ClassifyError 归类后端错误，已是 BizError 的原样返回
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := bizerrors.AsBizError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return bizerrors.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return bizerrors.Wrap(bizerrors.ErrCodeAlreadyExists, "record already exists", err)
	case errors.Is(err, context.Canceled):
		return bizerrors.Wrap(bizerrors.ErrCodeCanceled, "request canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return unavailable(err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone), errors.Is(err, mysqldriver.ErrInvalidConn):
		return unavailable(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPostgres(pgErr, err)
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlLockWaitTimeout, mysqlDeadlock, mysqlTooManyConns, mysqlServerShutdown, mysqlQueryInterrupted:
			return unavailable(err)
		case mysqlDuplicateEntry:
			return bizerrors.Wrap(bizerrors.ErrCodeAlreadyExists, "record already exists", err)
		}
		return internal(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return unavailable(err)
	}

	// sqlite 只能通过消息识别
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return bizerrors.Wrap(bizerrors.ErrCodeAlreadyExists, "record already exists", err)
	}
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return unavailable(err)
	}

	return internal(err)
}

func classifyPostgres(pgErr *pgconn.PgError, err error) error {
	code := pgErr.Code
	switch {
	case code == pgerrcode.UniqueViolation:
		return bizerrors.Wrap(bizerrors.ErrCodeAlreadyExists, "record already exists", err)
	case code == pgerrcode.QueryCanceled:
		return unavailable(err)
	case pgerrcode.IsConnectionException(code),
		pgerrcode.IsTransactionRollback(code),
		pgerrcode.IsInsufficientResources(code),
		pgerrcode.IsOperatorIntervention(code):
		return unavailable(err)
	}
	return internal(err)
}

func unavailable(err error) error {
	return bizerrors.Wrap(bizerrors.ErrCodeBackendUnavailable, "backend unavailable", err)
}

func internal(err error) error {
	return bizerrors.Wrap(bizerrors.ErrCodeInternal, "backend error", err)
}
