package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGDetails carries the Postgres diagnostics of a driver error.
type PGDetails struct {
	PGCode       string `json:"pg_code,omitempty"`
	PGClass      string `json:"pg_class,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

// ErrorDump flattens an error chain for structured request logs.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	PGDetails
}

// SQLSTATE classes worth naming in logs.
var sqlStateClasses = map[string]string{
	"08": "connection_exception",
	"22": "data_exception",
	"23": "integrity_constraint_violation",
	"25": "invalid_transaction_state",
	"40": "transaction_rollback",
	"53": "insufficient_resources",
	"57": "operator_intervention",
}

var pgExtractors = []func(error) (PGDetails, bool){
	func(err error) (PGDetails, bool) {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return PGDetails{}, false
		}
		return PGDetails{
			PGCode:       pgErr.Code,
			PGConstraint: pgErr.ConstraintName,
			PGTable:      pgErr.TableName,
			PGColumn:     pgErr.ColumnName,
			PGDetail:     pgErr.Detail,
			PGMessage:    pgErr.Message,
		}, true
	},
	func(err error) (PGDetails, bool) {
		var pqErr *pq.Error
		if !errors.As(err, &pqErr) {
			return PGDetails{}, false
		}
		return PGDetails{
			PGCode:       string(pqErr.Code),
			PGConstraint: pqErr.Constraint,
			PGTable:      pqErr.Table,
			PGColumn:     pqErr.Column,
			PGDetail:     pqErr.Detail,
			PGMessage:    pqErr.Message,
		}, true
	},
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	dump := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		dump.Code = typed.Code()
	}
	for link := err; link != nil; link = errors.Unwrap(link) {
		dump.Chain = append(dump.Chain, fmt.Sprintf("%T: %v", link, link))
	}
	for _, extract := range pgExtractors {
		if pg, ok := extract(err); ok {
			if len(pg.PGCode) >= 2 {
				pg.PGClass = sqlStateClasses[pg.PGCode[:2]]
			}
			dump.PGDetails = pg
			break
		}
	}
	return dump
}
