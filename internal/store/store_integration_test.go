// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/identity/internal/store"
)

func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("identity_test"),
		postgres.WithUsername("identity"),
		postgres.WithPassword("identity"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return "", nil, err
	}
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return "", nil, err
	}
	return connStr, func() { _ = container.Terminate(ctx) }, nil
}

var _ = Describe("Store", Ordered, func() {
	var (
		ctx       context.Context
		connStr   string
		terminate func()
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		connStr, terminate, err = startPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if terminate != nil {
			terminate()
		}
	})

	Describe("Migrator", func() {
		It("walks the full up, step and down cycle", func() {
			migrator, err := store.NewMigrator(connStr)
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = migrator.Close() }()

			version, dirty, err := migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(BeZero())
			Expect(dirty).To(BeFalse())

			Expect(migrator.Up()).To(Succeed())
			latest, dirty, err := migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(latest).To(BeNumerically(">", 0))
			Expect(dirty).To(BeFalse())

			pending, err := migrator.PendingMigrations()
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())

			Expect(migrator.Steps(-1)).To(Succeed())
			version, _, err = migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(Equal(latest - 1))

			Expect(migrator.Up()).To(Succeed())
			Expect(migrator.Down()).To(Succeed())
			version, _, err = migrator.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(BeZero())

			Expect(migrator.Up()).To(Succeed())
		})
	})

	Describe("Open", func() {
		It("connects and enforces the email constraint", func() {
			pool, err := store.Open(ctx, connStr, store.DefaultPoolConfig(), nil)
			Expect(err).NotTo(HaveOccurred())
			defer pool.Close()

			_, err = pool.Exec(ctx,
				`INSERT INTO accounts (id, email, password_hash) VALUES (gen_random_uuid(), 'dup@example.com', 'h')`)
			Expect(err).NotTo(HaveOccurred())
			_, err = pool.Exec(ctx,
				`INSERT INTO accounts (id, email, password_hash) VALUES (gen_random_uuid(), 'dup@example.com', 'h')`)
			Expect(err).To(HaveOccurred())
		})

		It("gives up on an unreachable database", func() {
			cfg := store.DefaultPoolConfig()
			cfg.PingAttempts = 2
			cfg.PingBackoff = 10 * time.Millisecond
			cfg.ConnectTimeout = 200 * time.Millisecond

			_, err := store.Open(ctx, "postgres://identity@127.0.0.1:1/identity", cfg, nil)
			Expect(err).To(HaveOccurred())
		})
	})
})
