/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

const (
	// Snapshot queries. Rows carry the id of the write that last touched them;
	// rows a write did not touch are stale and deleted in the same transaction.
	queryUpsertAccount = `
		INSERT INTO accounts (id, balance_units, remainder, updated_at, write_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = CASE
				WHEN accounts.balance_units != excluded.balance_units OR accounts.remainder != excluded.remainder
				THEN excluded.updated_at
				ELSE accounts.updated_at
			END,
			balance_units = excluded.balance_units,
			remainder = excluded.remainder,
			write_id = excluded.write_id`

	queryUpsertEnrollment = `
		INSERT INTO enrollments (id, enrolled_at, write_id)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			write_id = excluded.write_id`

	queryDeleteStaleAccounts = `
		DELETE FROM accounts WHERE write_id != ?`

	queryDeleteStaleEnrollments = `
		DELETE FROM enrollments WHERE write_id != ?`

	queryGetAccounts = `
		SELECT id, balance_units, remainder
		FROM accounts
		ORDER BY id`

	queryGetEnrollments = `
		SELECT id
		FROM enrollments
		ORDER BY id`

	queryGetEnrollmentTimes = `
		SELECT id, enrolled_at
		FROM enrollments
		ORDER BY id`

	// Snapshot metadata queries
	queryUpsertSnapshotMeta = `
		INSERT INTO snapshot_meta (singleton, write_id, written_at, accounts, enrolled)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(singleton) DO UPDATE SET
			write_id = excluded.write_id,
			written_at = excluded.written_at,
			accounts = excluded.accounts,
			enrolled = excluded.enrolled`

	queryGetSnapshotMeta = `
		SELECT write_id, written_at, accounts, enrolled
		FROM snapshot_meta
		WHERE singleton = 1`
)
