package syncgw

import (
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Gateway is the sync engine's entry point, wrapping the single storage
// handle the way the teacher's repositories wrap *sqlx.DB.
type Gateway struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

func NewGateway(db *sqlx.DB, logger *logrus.Logger) *Gateway {
	return &Gateway{db: db, logger: logger}
}
