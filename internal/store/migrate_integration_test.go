// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

//go:build integration

package store_test

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/facegate/facegate/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("facegate_test"),
			postgres.WithUsername("facegate"),
			postgres.WithPassword("facegate"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	tableExists := func(pool *pgxpool.Pool) bool {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'users')`,
		).Scan(&exists)
		Expect(err).NotTo(HaveOccurred())
		return exists
	}

	It("applies and reverts the users schema", func() {
		m, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(m.Close()).To(Succeed()) }()

		pending, err := m.Pending()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(ConsistOf(uint(1)))

		Expect(m.Up()).To(Succeed())
		Expect(m.Up()).To(Succeed(), "a second Up is a no-op")

		version, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())

		pool, err := store.Connect(ctx, slog.Default(), store.DefaultRetryPolicy, connStr)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()
		Expect(tableExists(pool)).To(BeTrue())

		Expect(m.Down()).To(Succeed())
		Expect(tableExists(pool)).To(BeFalse())
	})

	It("rejects a user without any factor", func() {
		m, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(m.Close()).To(Succeed()) }()
		Expect(m.Up()).To(Succeed())

		pool, err := store.Connect(ctx, slog.Default(), store.DefaultRetryPolicy, connStr)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		_, err = pool.Exec(ctx, `INSERT INTO users (id, email) VALUES ('x', 'x@b.com')`)
		Expect(err).To(HaveOccurred())
	})
})
