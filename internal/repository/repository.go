package repository

import (
	"time"

	"github.com/guardiannet/dispatch/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Repository - хранилище инцидентов, экипажей и журнала на PostgreSQL
// с кешем инцидентов в Redis
type Repository struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
	cacheTTL    time.Duration
}

var (
	_ service.DispatchStore      = (*Repository)(nil)
	_ service.IncidentRepository = (*Repository)(nil)
	_ service.UnitRepository     = (*Repository)(nil)
)

func NewRepository(db *pgxpool.Pool, redisClient *redis.Client, cacheTTL time.Duration) *Repository {
	return &Repository{
		db:          db,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
	}
}

// nullableString превращает пустую строку в NULL
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
