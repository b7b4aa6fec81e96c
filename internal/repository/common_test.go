package repository

import "github.com/Bessima/gift-fulfillment/internal/config/db"

func NewTestDB(pool db.PgxPoolInterface) *db.DB {
	return &db.DB{
		Pool: pool,
	}
}
