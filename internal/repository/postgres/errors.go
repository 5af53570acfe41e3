package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/database"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == database.UniqueViolation
}
