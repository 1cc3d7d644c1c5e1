package repository_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MateusMoreirac/Podscrebr/internal/domain"
	"github.com/MateusMoreirac/Podscrebr/internal/repository"
	"github.com/MateusMoreirac/Podscrebr/pkg/db"
	outboxUtils "github.com/MateusMoreirac/Podscrebr/pkg/outbox/utils"
	"github.com/MateusMoreirac/Podscrebr/pkg/testsuite"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

const migrationsPath = "../../migrations"

type RepositorySuite struct {
	testsuite.BaseSuite

	Products   repository.ProductRepository
	PgStock    repository.StockStore
	RedisStock repository.RedisStockStore
	Carts      repository.CartRepository
}

func (s *RepositorySuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure(migrationsPath)

	logger := zap.NewNop()
	s.Products = repository.NewProductRepository(s.DbPool, logger)
	s.PgStock = repository.NewPostgresStockStore(s.DbPool, logger)
	s.RedisStock = repository.NewRedisStockStore(s.Redis, logger)
	s.Carts = repository.NewCartRepository(s.Redis, time.Hour, logger)
}

func (s *RepositorySuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *RepositorySuite) SetupTest() {
	s.BaseSuite.TruncateTable("products")
	s.BaseSuite.TruncateTable("processed_event_items")
	s.BaseSuite.FlushRedis()
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) createProduct(stock int64, sizes ...string) *domain.Product {
	product := &domain.Product{
		ID:          uuid.NewString(),
		Name:        "Camisa Oversized",
		Description: "Algodão",
		Price:       decimal.RequireFromString("79.90"),
		Stock:       stock,
		Category:    "camisas",
		Sizes:       sizes,
	}

	err := db.WithTx(s.Ctx, s.DbPool, zap.NewNop(), func(tx pgx.Tx) error {
		_, err := s.Products.Create(s.Ctx, tx, product)
		return err
	})
	s.Require().NoError(err)

	return product
}

func (s *RepositorySuite) TestProductRepository_CRUD() {
	created := s.createProduct(5, "P", "M")

	got, err := s.Products.GetByID(s.Ctx, created.ID)
	s.Require().NoError(err)
	s.Require().Equal(created.Name, got.Name)
	s.Require().True(created.Price.Equal(got.Price))
	s.Require().Equal([]string{"P", "M"}, got.Sizes)

	list, total, err := s.Products.List(s.Ctx, 10, 0)
	s.Require().NoError(err)
	s.Require().Equal(int64(1), total)
	s.Require().Len(list, 1)

	name := "Camisa Nova"
	price := decimal.RequireFromString("89.90")
	s.Require().NoError(s.Products.Update(s.Ctx, created.ID, &domain.UpdateProductInput{Name: &name, Price: &price}))

	got, err = s.Products.GetByID(s.Ctx, created.ID)
	s.Require().NoError(err)
	s.Require().Equal(name, got.Name)
	s.Require().True(price.Equal(got.Price))

	s.Require().NoError(s.Products.DeleteByID(s.Ctx, created.ID))

	_, err = s.Products.GetByID(s.Ctx, created.ID)
	s.Require().ErrorIs(err, repository.ErrProductNotFound)
	s.Require().ErrorIs(s.Products.DeleteByID(s.Ctx, created.ID), repository.ErrProductNotFound)
}

func (s *RepositorySuite) TestProductRepository_ListStockLevels() {
	a := s.createProduct(3)
	b := s.createProduct(8)

	levels, err := s.Products.ListStockLevels(s.Ctx)
	s.Require().NoError(err)
	s.Require().Equal(map[string]int64{a.ID: 3, b.ID: 8}, levels)
}

func (s *RepositorySuite) TestPostgresStock_ConcurrentDecrementsNeverOversell() {
	product := s.createProduct(10)

	var applied, insufficient atomic.Int64
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.PgStock.ConditionalDecrement(s.Ctx, product.ID, 1)
			switch {
			case err == nil:
				applied.Add(1)
			case errorsIs(err, repository.ErrInsufficientStock):
				insufficient.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Require().Equal(int64(10), applied.Load())
	s.Require().Equal(int64(10), insufficient.Load())

	stock, err := s.PgStock.GetStock(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.Require().Zero(stock)
}

func (s *RepositorySuite) TestPostgresStock_Errors() {
	product := s.createProduct(2)

	_, err := s.PgStock.ConditionalDecrement(s.Ctx, product.ID, 3)
	s.Require().ErrorIs(err, repository.ErrInsufficientStock)

	_, err = s.PgStock.ConditionalDecrement(s.Ctx, "missing", 1)
	s.Require().ErrorIs(err, repository.ErrProductNotFound)

	_, err = s.PgStock.GetStock(s.Ctx, "missing")
	s.Require().ErrorIs(err, repository.ErrProductNotFound)

	s.Require().ErrorIs(s.PgStock.SetStock(s.Ctx, "missing", 1), repository.ErrProductNotFound)
}

func (s *RepositorySuite) TestPostgresStock_MissingFunctionIsUnavailable() {
	product := s.createProduct(4)

	_, err := s.DbPool.Exec(s.Ctx, `DROP FUNCTION decrement_stock(TEXT, BIGINT)`)
	s.Require().NoError(err)
	defer s.restoreSchema()

	_, err = s.PgStock.ConditionalDecrement(s.Ctx, product.ID, 1)
	s.Require().ErrorIs(err, repository.ErrAtomicUnavailable)

	current, err := s.PgStock.GetStock(s.Ctx, product.ID)
	s.Require().NoError(err)
	s.Require().Equal(int64(4), current)

	s.Require().NoError(s.PgStock.SetStock(s.Ctx, product.ID, current-1))

	newStock, err := s.PgStock.IncreaseStock(s.Ctx, product.ID, 2)
	s.Require().NoError(err)
	s.Require().Equal(int64(5), newStock)
}

func (s *RepositorySuite) restoreSchema() {
	schema, err := os.ReadFile(migrationsPath + "/000001_init.up.sql")
	s.Require().NoError(err)

	_, err = s.DbPool.Exec(context.Background(), string(schema))
	s.Require().NoError(err)
}

func (s *RepositorySuite) TestRedisStock_ConditionalDecrement() {
	s.Require().NoError(s.RedisStock.PutStock(s.Ctx, "p1", 10))

	var applied atomic.Int64
	var wg sync.WaitGroup
	for range 15 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RedisStock.ConditionalDecrement(s.Ctx, "p1", 1); err == nil {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Require().Equal(int64(10), applied.Load())

	_, err := s.RedisStock.ConditionalDecrement(s.Ctx, "p1", 1)
	s.Require().ErrorIs(err, repository.ErrInsufficientStock)

	_, err = s.RedisStock.ConditionalDecrement(s.Ctx, "missing", 1)
	s.Require().ErrorIs(err, repository.ErrProductNotFound)
}

func (s *RepositorySuite) TestRedisStock_MirrorOperations() {
	seeded, err := s.RedisStock.SeedStock(s.Ctx, "p1", 5)
	s.Require().NoError(err)
	s.Require().True(seeded)

	seeded, err = s.RedisStock.SeedStock(s.Ctx, "p1", 99)
	s.Require().NoError(err)
	s.Require().False(seeded)

	stock, err := s.RedisStock.GetStock(s.Ctx, "p1")
	s.Require().NoError(err)
	s.Require().Equal(int64(5), stock)

	s.Require().NoError(s.RedisStock.SetStock(s.Ctx, "p1", 2))
	s.Require().ErrorIs(s.RedisStock.SetStock(s.Ctx, "missing", 2), repository.ErrProductNotFound)

	newStock, err := s.RedisStock.IncreaseStock(s.Ctx, "p1", 3)
	s.Require().NoError(err)
	s.Require().Equal(int64(5), newStock)

	s.Require().NoError(s.RedisStock.DropStock(s.Ctx, "p1"))
	_, err = s.RedisStock.GetStock(s.Ctx, "p1")
	s.Require().ErrorIs(err, repository.ErrProductNotFound)
}

func (s *RepositorySuite) TestRedisStock_IncreaseNeverRecreatesDroppedKey() {
	_, err := s.RedisStock.IncreaseStock(s.Ctx, "gone", 4)
	s.Require().ErrorIs(err, repository.ErrProductNotFound)

	_, err = s.RedisStock.GetStock(s.Ctx, "gone")
	s.Require().ErrorIs(err, repository.ErrProductNotFound)

	for range 50 {
		s.Require().NoError(s.RedisStock.PutStock(s.Ctx, "p1", 1))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.RedisStock.DropStock(s.Ctx, "p1")
		}()
		go func() {
			defer wg.Done()
			_, _ = s.RedisStock.IncreaseStock(s.Ctx, "p1", 3)
		}()
		wg.Wait()

		_, err = s.RedisStock.GetStock(s.Ctx, "p1")
		s.Require().ErrorIs(err, repository.ErrProductNotFound)
	}
}

func (s *RepositorySuite) TestCartRepository_RoundTrip() {
	empty, err := s.Carts.Get(s.Ctx, "s1")
	s.Require().NoError(err)
	s.Require().True(empty.IsEmpty())

	cart := &domain.Cart{}
	s.Require().NoError(cart.Add(domain.Product{ID: "p1", Name: "Camisa", Price: decimal.RequireFromString("10.50"), Stock: 3}, 2, "M"))
	s.Require().NoError(s.Carts.Save(s.Ctx, "s1", cart))

	got, err := s.Carts.Get(s.Ctx, "s1")
	s.Require().NoError(err)
	s.Require().Len(got.Lines, 1)
	s.Require().Equal("M", got.Lines[0].Size)
	s.Require().True(decimal.RequireFromString("21").Equal(got.Total()))

	ttl, err := s.Redis.TTL(s.Ctx, "cart:s1").Result()
	s.Require().NoError(err)
	s.Require().Greater(ttl, time.Duration(0))

	s.Require().NoError(s.Carts.Delete(s.Ctx, "s1"))

	got, err = s.Carts.Get(s.Ctx, "s1")
	s.Require().NoError(err)
	s.Require().True(got.IsEmpty())
}

func errorsIs(err, target error) bool {
	return errors.Is(err, target)
}

func (s *RepositorySuite) TestCartRepository_CheckoutLock() {
	unlock, err := s.Carts.Lock(s.Ctx, "s1", time.Minute)
	s.Require().NoError(err)

	_, err = s.Carts.Lock(s.Ctx, "s1", time.Minute)
	s.Require().ErrorIs(err, repository.ErrCheckoutInProgress)

	other, err := s.Carts.Lock(s.Ctx, "s2", time.Minute)
	s.Require().NoError(err)
	other(s.Ctx)

	unlock(s.Ctx)

	again, err := s.Carts.Lock(s.Ctx, "s1", time.Minute)
	s.Require().NoError(err)
	again(s.Ctx)
}

func (s *RepositorySuite) TestCartRepository_ReservationSurvivesRoundTrip() {
	cart := &domain.Cart{Reserved: domain.ConsolidatedDemand{"p1": 2}}
	s.Require().NoError(cart.Add(domain.Product{ID: "p1", Price: decimal.RequireFromString("5")}, 2, ""))
	s.Require().NoError(s.Carts.Save(s.Ctx, "s1", cart))

	got, err := s.Carts.Get(s.Ctx, "s1")
	s.Require().NoError(err)
	s.Require().Equal(domain.ConsolidatedDemand{"p1": 2}, got.Reserved)
}

func (s *RepositorySuite) TestProcessWithDeduplication_ClaimCommitsOnlyOnSuccess() {
	logger := zap.NewNop()
	failing := errors.New("restock failed")

	calls := 0
	err := outboxUtils.ProcessWithDeduplication(s.Ctx, s.DbPool, logger, 42, "p1", func(context.Context) error {
		calls++
		return failing
	})
	s.Require().ErrorIs(err, failing)
	s.Require().Equal(3, calls)

	err = outboxUtils.ProcessWithDeduplication(s.Ctx, s.DbPool, logger, 42, "p2", func(context.Context) error {
		return nil
	})
	s.Require().NoError(err)

	calls = 0
	for _, item := range []string{"p1", "p2"} {
		err = outboxUtils.ProcessWithDeduplication(s.Ctx, s.DbPool, logger, 42, item, func(context.Context) error {
			calls++
			return nil
		})
		s.Require().NoError(err)
	}
	s.Require().Equal(1, calls)

	var claimed int
	err = s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM processed_event_items WHERE event_id = 42`).Scan(&claimed)
	s.Require().NoError(err)
	s.Require().Equal(2, claimed)
}
