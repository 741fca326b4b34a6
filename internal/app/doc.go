// Package app composes the venture funding settlement engine.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── venture/        # Ventures, tiers, benefits
//	│   ├── investment/     # Investment ledger rows
//	│   └── payment/        # Payment requests and outcomes
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # VentureStore and InvestmentStore
//	│   ├── memory/         # In-memory implementation for tests
//	│   └── postgres/       # PostgreSQL implementation for production
//	├── services/           # Business logic
//	│   ├── catalog/        # Venture lifecycle and tiers
//	│   ├── ledger/         # Idempotent investment creation
//	│   ├── paymentbridge/  # Dispatch to the payment subsystem
//	│   ├── settlement/     # Outcome listener, sources, pending sweeper
//	│   └── funding/        # Serialized funding aggregation
//	├── faults/             # Error taxonomy
//	├── alert/              # Operator alert sink for inconsistencies
//	├── httpapi/            # HTTP handlers and rate limiting
//	├── system/             # Service lifecycle management
//	└── metrics/            # Prometheus collectors
//
// # Money Flow
//
// An investment is recorded pending by the ledger, dispatched to the payment
// subsystem by the bridge, and settled by the listener when the asynchronous
// outcome arrives: completions activate the row and feed the funding
// aggregator, failures cancel it. Every step is idempotent under retry and
// redelivery, and a venture's running total only ever moves through the
// aggregator's version-checked writes.
package app
