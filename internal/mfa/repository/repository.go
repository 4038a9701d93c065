// Package repository stores pending one-time code challenges in Postgres so that several
// backend instances can share them.
package repository

import "covid-dashboard/platform/internal/mfa"

var _ mfa.ChallengeStore = (*PostgresRepository)(nil)
