// Package neo4j mirrors the concept graph into Neo4j so it can be explored
// with Cypher. SQLite stays the source of truth.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/torenunez/lerni/internal/storage/models"
	"github.com/torenunez/lerni/pkg/circuitbreaker"
	"github.com/torenunez/lerni/pkg/config"
	"github.com/torenunez/lerni/pkg/logger"
	"github.com/torenunez/lerni/pkg/retry"
)

const opTimeout = 10 * time.Second

type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(ctx context.Context, cfg config.Neo4jConfig) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	retryConfig := retry.DefaultConfig()
	retryConfig.RetryIf = neo4j.IsRetryable
	retryConfig.Logger = logger.GetLogger()

	logger.Info("Neo4j client initialized", zap.String("uri", cfg.URI), zap.String("database", cfg.Database))

	return &Client{
		driver:   driver,
		database: cfg.Database,
		cb: circuitbreaker.New("neo4j", circuitbreaker.Config{
			FailureThreshold: 3,
			Cooldown:         20 * time.Second,
			Logger:           logger.GetLogger(),
		}),
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// write runs statements in one managed write transaction, retried on
// transient driver errors and guarded by the breaker.
func (c *Client) write(ctx context.Context, statements ...statement) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return c.cb.Execute(func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{
				DatabaseName: c.database,
				AccessMode:   neo4j.AccessModeWrite,
			})
			defer session.Close(ctx)

			_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
				for _, st := range statements {
					res, err := tx.Run(ctx, st.cypher, st.params)
					if err != nil {
						return nil, err
					}
					if _, err := res.Consume(ctx); err != nil {
						return nil, err
					}
				}
				return nil, nil
			})
			return err
		})
	})
}

func (c *Client) PutConcept(ctx context.Context, concept *models.Concept) error {
	if err := c.write(ctx, putConcept(concept)); err != nil {
		return fmt.Errorf("failed to mirror concept: %w", err)
	}
	logger.Debug("Concept mirrored", zap.String("concept_id", concept.ID))
	return nil
}

func (c *Client) DeleteConcept(ctx context.Context, id string) error {
	if err := c.write(ctx, deleteConcept(id)); err != nil {
		return fmt.Errorf("failed to delete mirrored concept: %w", err)
	}
	return nil
}

func (c *Client) PutEdge(ctx context.Context, edge models.ConceptEdge) error {
	st, err := putEdge(edge)
	if err != nil {
		return err
	}
	if err := c.write(ctx, st); err != nil {
		return fmt.Errorf("failed to mirror edge: %w", err)
	}
	return nil
}

func (c *Client) DeleteEdges(ctx context.Context, a, b string, rel *models.Relationship) error {
	st, err := deleteEdges(a, b, rel)
	if err != nil {
		return err
	}
	if err := c.write(ctx, st); err != nil {
		return fmt.Errorf("failed to delete mirrored edges: %w", err)
	}
	return nil
}

// Replace rebuilds the mirror from scratch in one transaction.
func (c *Client) Replace(ctx context.Context, concepts []models.Concept, edges []models.ConceptEdge) error {
	statements, err := replaceAll(concepts, edges)
	if err != nil {
		return err
	}
	if err := c.write(ctx, statements...); err != nil {
		return fmt.Errorf("failed to rebuild graph mirror: %w", err)
	}
	return nil
}
