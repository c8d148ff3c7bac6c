// Package test provides the dockerized-Postgres test harness the object
// store's integration tests build on. Adapted from the teacher's own
// IntegrationTestSuite: testify/suite plus testcontainers-go spinning up a
// real database, trimmed to just Postgres — the Kafka/Zookeeper/reaper
// containers the teacher also starts belong to its own outbox-delivery
// tests, and there is nothing in this module's scope that needs a
// dockerized broker (no test here exercises notify.KafkaPublisher).
package test

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vaultit/qvarn-go/csql"
)

// PostgresSuite starts a throwaway Postgres container for the duration of
// the suite and exposes a *csql.DB scoped to a fresh schema per test.
type PostgresSuite struct {
	suite.Suite

	container testcontainers.Container
	host      string
	port      string
	user      string
	password  string
	dbName    string
}

func (s *PostgresSuite) SetupSuite() {
	ctx := context.Background()

	s.user = "qvarn"
	s.password = "qvarn"
	s.dbName = "qvarn"

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     s.user,
			"POSTGRES_PASSWORD": s.password,
			"POSTGRES_DB":       s.dbName,
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	s.Require().NoError(err)
	s.container = c

	host, err := c.Host(ctx)
	s.Require().NoError(err)
	port, err := c.MappedPort(ctx, "5432")
	s.Require().NoError(err)
	s.host = host
	s.port = port.Port()
}

func (s *PostgresSuite) TearDownSuite() {
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

// OpenSchema opens a *csql.DB scoped to a fresh schema, for a test that
// wants an isolated namespace inside the shared container.
func (s *PostgresSuite) OpenSchema(schema string) *csql.DB {
	dsn := fmt.Sprintf("host=%s port=%s dbname=%s user=%s sslmode=disable",
		s.host, s.port, s.dbName, s.user)
	db, err := csql.OpenWithSchema(context.Background(), dsn, s.password, schema)
	s.Require().NoError(err)
	return db
}
