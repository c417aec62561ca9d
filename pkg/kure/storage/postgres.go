package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kure-project/kure-monitor/pkg/kure"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, following the teacher's
// sqlc-generated db.DBTX convention (pkg/alert/store.go) so query methods can
// run standalone or inside a transaction without duplicating SQL.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements Storage against a pgxpool.Pool. Hand-written in the
// calling convention of the teacher's sqlc-generated query layer (the
// generated file itself was filtered from the retrieval pack) since no code
// generator is run here.
type Postgres struct {
	pool *pgxpool.Pool
}

// New creates a Postgres-backed Storage.
func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// --- Pod failures ---

func (s *Postgres) UpsertPodFailure(ctx context.Context, in PodFailureInput) (*kure.PodFailure, bool, error) {
	containerStatuses, err := json.Marshal(in.ContainerStatus)
	if err != nil {
		return nil, false, fmt.Errorf("marshaling container statuses: %w", err)
	}
	events, err := json.Marshal(in.RecentEvents)
	if err != nil {
		return nil, false, fmt.Errorf("marshaling events: %w", err)
	}

	var pf *kure.PodFailure
	isNew := false

	err = withTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT id FROM pod_failures
			WHERE namespace = $1 AND pod_name = $2 AND status IN ('new', 'investigating')
			ORDER BY created_at DESC LIMIT 1`, in.Namespace, in.PodName)

		var existingID int64
		err := row.Scan(&existingID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			isNew = true
			row = tx.QueryRow(ctx, `
				INSERT INTO pod_failures
					(namespace, pod_name, reason, message, node_name, phase,
					 container_statuses, recent_events, logs, manifest, solution,
					 status, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,'new',$12)
				RETURNING id, namespace, pod_name, reason, message, node_name, phase,
					container_statuses, recent_events, logs, manifest, solution,
					status, created_at, resolved_at, resolution_note`,
				in.Namespace, in.PodName, in.Reason, in.Message, in.NodeName, in.Phase,
				containerStatuses, events, in.Logs, in.Manifest, in.Solution, now())
			pf, err = scanPodFailure(row)
			return err
		case err != nil:
			return fmt.Errorf("looking up active pod failure: %w", err)
		default:
			row = tx.QueryRow(ctx, `
				UPDATE pod_failures SET
					reason=$1, message=$2, node_name=$3, phase=$4,
					container_statuses=$5, recent_events=$6, logs=$7, manifest=$8,
					solution=$9, created_at=$10
				WHERE id=$11
				RETURNING id, namespace, pod_name, reason, message, node_name, phase,
					container_statuses, recent_events, logs, manifest, solution,
					status, created_at, resolved_at, resolution_note`,
				in.Reason, in.Message, in.NodeName, in.Phase, containerStatuses, events,
				in.Logs, in.Manifest, in.Solution, now(), existingID)
			pf, err = scanPodFailure(row)
			return err
		}
	})
	if err != nil {
		return nil, false, err
	}
	return pf, isNew, nil
}

func (s *Postgres) GetPodFailure(ctx context.Context, id int64) (*kure.PodFailure, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, namespace, pod_name, reason, message, node_name, phase,
			container_statuses, recent_events, logs, manifest, solution,
			status, created_at, resolved_at, resolution_note
		FROM pod_failures WHERE id = $1`, id)

	pf, err := scanPodFailure(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, kure.NotFoundError("pod failure %d not found", id)
	}
	return pf, err
}

// buildListPodFailuresQuery assembles the filtered pod_failures query and its
// positional args together so the placeholder numbering ($1, $2, ...) always
// lines up with len(args), regardless of which filters are set.
func buildListPodFailuresQuery(filter PodFailureFilter) (string, []any) {
	query := `
		SELECT id, namespace, pod_name, reason, message, node_name, phase,
			container_statuses, recent_events, logs, manifest, solution,
			status, created_at, resolved_at, resolution_note
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY pod_name, namespace ORDER BY created_at DESC) AS rn
			FROM pod_failures
		) latest
		WHERE rn = 1`
	args := []any{}
	n := 0

	if filter.Namespace != "" {
		n++
		query += fmt.Sprintf(" AND namespace = $%d", n)
		args = append(args, filter.Namespace)
	}
	if filter.Status != "" {
		n++
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, filter.Status)
	}
	if filter.DismissedOnly {
		query += " AND status IN ('resolved', 'ignored')"
	} else if !filter.IncludeDismiss {
		query += " AND status IN ('new', 'investigating')"
	}
	query += " ORDER BY created_at DESC"
	return query, args
}

func (s *Postgres) ListPodFailures(ctx context.Context, filter PodFailureFilter) ([]kure.PodFailure, error) {
	query, args := buildListPodFailuresQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing pod failures: %w", err)
	}
	defer rows.Close()

	var out []kure.PodFailure
	for rows.Next() {
		pf, err := scanPodFailure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pf)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdatePodFailureStatus(ctx context.Context, id int64, newStatus, note string) (*kure.PodFailure, error) {
	current, err := s.GetPodFailure(ctx, id)
	if err != nil {
		return nil, err
	}
	if !kure.CanTransitionPodStatus(current.Status, newStatus) {
		return nil, kure.InvalidTransitionError(current.Status, newStatus)
	}

	var row pgx.Row
	if newStatus == kure.PodStatusResolved {
		row = s.pool.QueryRow(ctx, `
			UPDATE pod_failures SET status=$1, resolved_at=$2, resolution_note=$3
			WHERE id=$4
			RETURNING id, namespace, pod_name, reason, message, node_name, phase,
				container_statuses, recent_events, logs, manifest, solution,
				status, created_at, resolved_at, resolution_note`,
			newStatus, now(), note, id)
	} else {
		row = s.pool.QueryRow(ctx, `
			UPDATE pod_failures SET status=$1, resolved_at=NULL, resolution_note=''
			WHERE id=$2
			RETURNING id, namespace, pod_name, reason, message, node_name, phase,
				container_statuses, recent_events, logs, manifest, solution,
				status, created_at, resolved_at, resolution_note`,
			newStatus, id)
	}
	return scanPodFailure(row)
}

func (s *Postgres) DeletePodFailureRecord(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM pod_failures WHERE id=$1 AND status IN ('resolved', 'ignored')`, id)
	if err != nil {
		return fmt.Errorf("deleting pod failure record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return kure.NotFoundError("pod failure %d not found or not terminal", id)
	}
	return nil
}

func (s *Postgres) DismissDeletedPod(ctx context.Context, namespace, podName string) ([]kure.PodFailure, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE pod_failures
		SET status='resolved', dismissed=TRUE, resolved_at=$1,
			resolution_note='Auto-resolved: pod recovered'
		WHERE namespace=$2 AND pod_name=$3 AND status IN ('new', 'investigating')
		RETURNING id, namespace, pod_name, reason, message, node_name, phase,
			container_statuses, recent_events, logs, manifest, solution,
			status, created_at, resolved_at, resolution_note`,
		now(), namespace, podName)
	if err != nil {
		return nil, fmt.Errorf("dismissing deleted pod: %w", err)
	}
	defer rows.Close()
	return scanPodFailures(rows)
}

func (s *Postgres) DeletePodFailuresByNamespace(ctx context.Context, namespace string) ([]kure.PodFailure, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM pod_failures WHERE namespace=$1 AND status IN ('new', 'investigating')
		RETURNING id, namespace, pod_name, reason, message, node_name, phase,
			container_statuses, recent_events, logs, manifest, solution,
			status, created_at, resolved_at, resolution_note`, namespace)
	if err != nil {
		return nil, fmt.Errorf("deleting pod failures by namespace: %w", err)
	}
	defer rows.Close()
	return scanPodFailures(rows)
}

func (s *Postgres) DeletePodFailureByPod(ctx context.Context, namespace, podName string) ([]kure.PodFailure, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM pod_failures WHERE namespace=$1 AND pod_name=$2 AND status IN ('new', 'investigating')
		RETURNING id, namespace, pod_name, reason, message, node_name, phase,
			container_statuses, recent_events, logs, manifest, solution,
			status, created_at, resolved_at, resolution_note`, namespace, podName)
	if err != nil {
		return nil, fmt.Errorf("deleting pod failure by pod: %w", err)
	}
	defer rows.Close()
	return scanPodFailures(rows)
}

func (s *Postgres) CleanupOldResolvedPods(ctx context.Context, retentionMinutes int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM pod_failures
		WHERE status='resolved' AND resolved_at < $1`,
		now().Add(-time.Duration(retentionMinutes)*time.Minute))
	if err != nil {
		return 0, fmt.Errorf("cleaning up resolved pod failures: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) CleanupOldIgnoredPods(ctx context.Context, retentionMinutes int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM pod_failures
		WHERE status='ignored' AND created_at < $1`,
		now().Add(-time.Duration(retentionMinutes)*time.Minute))
	if err != nil {
		return 0, fmt.Errorf("cleaning up ignored pod failures: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanPodFailure(row pgx.Row) (*kure.PodFailure, error) {
	var pf kure.PodFailure
	var containerStatuses, events []byte
	var resolvedAt *time.Time
	var resolutionNote *string

	err := row.Scan(&pf.ID, &pf.Namespace, &pf.PodName, &pf.Reason, &pf.Message,
		&pf.NodeName, &pf.Phase, &containerStatuses, &events, &pf.Logs, &pf.Manifest,
		&pf.Solution, &pf.Status, &pf.CreatedAt, &resolvedAt, &resolutionNote)
	if err != nil {
		return nil, err
	}

	if len(containerStatuses) > 0 {
		_ = json.Unmarshal(containerStatuses, &pf.ContainerStatus)
	}
	if len(events) > 0 {
		_ = json.Unmarshal(events, &pf.RecentEvents)
	}
	pf.ResolvedAt = resolvedAt
	if resolutionNote != nil {
		pf.ResolutionNote = *resolutionNote
	}
	return &pf, nil
}

func scanPodFailures(rows pgx.Rows) ([]kure.PodFailure, error) {
	var out []kure.PodFailure
	for rows.Next() {
		pf, err := scanPodFailure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pf)
	}
	return out, rows.Err()
}

// --- Security findings ---

func (s *Postgres) UpsertSecurityFinding(ctx context.Context, in SecurityFindingInput) (*kure.SecurityFinding, bool, error) {
	var sf *kure.SecurityFinding
	isNew := false

	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT id FROM security_findings
			WHERE namespace=$1 AND resource_name=$2 AND title=$3 AND dismissed=FALSE
			LIMIT 1`, in.Namespace, in.ResourceName, in.Title)

		var existingID int64
		err := row.Scan(&existingID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			isNew = true
			row = tx.QueryRow(ctx, `
				INSERT INTO security_findings
					(namespace, resource_type, resource_name, title, severity, category,
					 description, remediation, manifest, timestamp, dismissed)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,FALSE)
				RETURNING id, namespace, resource_type, resource_name, title, severity,
					category, description, remediation, manifest, timestamp, dismissed`,
				in.Namespace, in.ResourceType, in.ResourceName, in.Title, in.Severity,
				in.Category, in.Description, in.Remediation, in.Manifest, now())
			sf, err = scanFinding(row)
			return err
		case err != nil:
			return fmt.Errorf("looking up active finding: %w", err)
		default:
			row = tx.QueryRow(ctx, `
				UPDATE security_findings SET
					resource_type=$1, severity=$2, category=$3, description=$4,
					remediation=$5, manifest=$6, timestamp=$7
				WHERE id=$8
				RETURNING id, namespace, resource_type, resource_name, title, severity,
					category, description, remediation, manifest, timestamp, dismissed`,
				in.ResourceType, in.Severity, in.Category, in.Description, in.Remediation,
				in.Manifest, now(), existingID)
			sf, err = scanFinding(row)
			return err
		}
	})
	if err != nil {
		return nil, false, err
	}
	return sf, isNew, nil
}

func (s *Postgres) ListSecurityFindings(ctx context.Context, filter SecurityFindingFilter) ([]kure.SecurityFinding, error) {
	query := `
		SELECT id, namespace, resource_type, resource_name, title, severity,
			category, description, remediation, manifest, timestamp, dismissed
		FROM security_findings WHERE 1=1`
	args := []any{}
	n := 0

	if filter.Namespace != "" {
		n++
		query += fmt.Sprintf(" AND namespace = $%d", n)
		args = append(args, filter.Namespace)
	}
	if filter.Severity != "" {
		n++
		query += fmt.Sprintf(" AND severity = $%d", n)
		args = append(args, filter.Severity)
	}
	if filter.DismissedOnly {
		query += " AND dismissed = TRUE"
	} else if !filter.IncludeDismiss {
		query += " AND dismissed = FALSE"
	}
	query += " ORDER BY timestamp DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing security findings: %w", err)
	}
	defer rows.Close()

	var out []kure.SecurityFinding
	for rows.Next() {
		sf, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sf)
	}
	return out, rows.Err()
}

func (s *Postgres) ClearSecurityFindings(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM security_findings WHERE dismissed = FALSE`)
	if err != nil {
		return 0, fmt.Errorf("clearing security findings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) DeleteFindingsByResource(ctx context.Context, resourceType, namespace, name string) ([]kure.SecurityFinding, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM security_findings
		WHERE resource_type=$1 AND namespace=$2 AND resource_name=$3 AND dismissed=FALSE
		RETURNING id, namespace, resource_type, resource_name, title, severity,
			category, description, remediation, manifest, timestamp, dismissed`,
		resourceType, namespace, name)
	if err != nil {
		return nil, fmt.Errorf("deleting findings by resource: %w", err)
	}
	defer rows.Close()
	return scanFindings(rows)
}

func (s *Postgres) DeleteFindingsByNamespace(ctx context.Context, namespace string) ([]kure.SecurityFinding, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM security_findings WHERE namespace=$1 AND dismissed=FALSE
		RETURNING id, namespace, resource_type, resource_name, title, severity,
			category, description, remediation, manifest, timestamp, dismissed`, namespace)
	if err != nil {
		return nil, fmt.Errorf("deleting findings by namespace: %w", err)
	}
	defer rows.Close()
	return scanFindings(rows)
}

func (s *Postgres) DeleteFindingsByRuleTitle(ctx context.Context, ruleTitle, namespace string) ([]kure.SecurityFinding, error) {
	query := `
		DELETE FROM security_findings
		WHERE (title = $1 OR title LIKE $1 || ': %') AND dismissed=FALSE`
	args := []any{ruleTitle}
	if namespace != "" {
		query += " AND namespace = $2"
		args = append(args, namespace)
	}
	query += ` RETURNING id, namespace, resource_type, resource_name, title, severity,
		category, description, remediation, manifest, timestamp, dismissed`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("deleting findings by rule title: %w", err)
	}
	defer rows.Close()
	return scanFindings(rows)
}

func scanFinding(row pgx.Row) (*kure.SecurityFinding, error) {
	var sf kure.SecurityFinding
	err := row.Scan(&sf.ID, &sf.Namespace, &sf.ResourceType, &sf.ResourceName, &sf.Title,
		&sf.Severity, &sf.Category, &sf.Description, &sf.Remediation, &sf.Manifest,
		&sf.Timestamp, &sf.Dismissed)
	if err != nil {
		return nil, err
	}
	return &sf, nil
}

func scanFindings(rows pgx.Rows) ([]kure.SecurityFinding, error) {
	var out []kure.SecurityFinding
	for rows.Next() {
		sf, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sf)
	}
	return out, rows.Err()
}

// --- Exclusions & registries ---
// All three follow the original implementation's idempotent
// INSERT ... ON CONFLICT DO NOTHING RETURNING ... then SELECT-existing
// pattern (original_source/backend/database/mixins/exclusions.py).

func (s *Postgres) AddExcludedNamespace(ctx context.Context, namespace string) (*kure.ExcludedNamespace, bool, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO excluded_namespaces (namespace, created_at) VALUES ($1, $2)
		ON CONFLICT (namespace) DO NOTHING
		RETURNING id, namespace, created_at`, namespace, now())

	var en kure.ExcludedNamespace
	err := row.Scan(&en.ID, &en.Namespace, &en.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		row = s.pool.QueryRow(ctx, `SELECT id, namespace, created_at FROM excluded_namespaces WHERE namespace=$1`, namespace)
		if err := row.Scan(&en.ID, &en.Namespace, &en.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("fetching existing excluded namespace: %w", err)
		}
		return &en, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("inserting excluded namespace: %w", err)
	}
	return &en, true, nil
}

func (s *Postgres) ListExcludedNamespaces(ctx context.Context) ([]kure.ExcludedNamespace, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, namespace, created_at FROM excluded_namespaces ORDER BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("listing excluded namespaces: %w", err)
	}
	defer rows.Close()

	var out []kure.ExcludedNamespace
	for rows.Next() {
		var en kure.ExcludedNamespace
		if err := rows.Scan(&en.ID, &en.Namespace, &en.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, en)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteExcludedNamespace(ctx context.Context, id int64) (*kure.ExcludedNamespace, error) {
	row := s.pool.QueryRow(ctx, `DELETE FROM excluded_namespaces WHERE id=$1 RETURNING id, namespace, created_at`, id)
	var en kure.ExcludedNamespace
	if err := row.Scan(&en.ID, &en.Namespace, &en.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, kure.NotFoundError("excluded namespace %d not found", id)
		}
		return nil, fmt.Errorf("deleting excluded namespace: %w", err)
	}
	return &en, nil
}

func (s *Postgres) AddExcludedPod(ctx context.Context, namespace, podName string) (*kure.ExcludedPod, bool, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO excluded_pods (namespace, pod_name, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (namespace, pod_name) DO NOTHING
		RETURNING id, namespace, pod_name, created_at`, namespace, podName, now())

	var ep kure.ExcludedPod
	err := row.Scan(&ep.ID, &ep.Namespace, &ep.PodName, &ep.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		row = s.pool.QueryRow(ctx, `SELECT id, namespace, pod_name, created_at FROM excluded_pods WHERE namespace=$1 AND pod_name=$2`, namespace, podName)
		if err := row.Scan(&ep.ID, &ep.Namespace, &ep.PodName, &ep.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("fetching existing excluded pod: %w", err)
		}
		return &ep, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("inserting excluded pod: %w", err)
	}
	return &ep, true, nil
}

func (s *Postgres) ListExcludedPods(ctx context.Context) ([]kure.ExcludedPod, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, namespace, pod_name, created_at FROM excluded_pods ORDER BY namespace, pod_name`)
	if err != nil {
		return nil, fmt.Errorf("listing excluded pods: %w", err)
	}
	defer rows.Close()

	var out []kure.ExcludedPod
	for rows.Next() {
		var ep kure.ExcludedPod
		if err := rows.Scan(&ep.ID, &ep.Namespace, &ep.PodName, &ep.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteExcludedPod(ctx context.Context, id int64) (*kure.ExcludedPod, error) {
	row := s.pool.QueryRow(ctx, `DELETE FROM excluded_pods WHERE id=$1 RETURNING id, namespace, pod_name, created_at`, id)
	var ep kure.ExcludedPod
	if err := row.Scan(&ep.ID, &ep.Namespace, &ep.PodName, &ep.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, kure.NotFoundError("excluded pod %d not found", id)
		}
		return nil, fmt.Errorf("deleting excluded pod: %w", err)
	}
	return &ep, nil
}

func (s *Postgres) AddExcludedRule(ctx context.Context, ruleTitle, namespace string) (*kure.ExcludedRule, bool, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO excluded_rules (rule_title, namespace, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (rule_title, namespace) DO NOTHING
		RETURNING id, rule_title, namespace, created_at`, ruleTitle, namespace, now())

	var er kure.ExcludedRule
	err := row.Scan(&er.ID, &er.RuleTitle, &er.Namespace, &er.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		row = s.pool.QueryRow(ctx, `SELECT id, rule_title, namespace, created_at FROM excluded_rules WHERE rule_title=$1 AND namespace=$2`, ruleTitle, namespace)
		if err := row.Scan(&er.ID, &er.RuleTitle, &er.Namespace, &er.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("fetching existing excluded rule: %w", err)
		}
		return &er, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("inserting excluded rule: %w", err)
	}
	return &er, true, nil
}

func (s *Postgres) ListExcludedRules(ctx context.Context) ([]kure.ExcludedRule, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, rule_title, namespace, created_at FROM excluded_rules ORDER BY rule_title, namespace`)
	if err != nil {
		return nil, fmt.Errorf("listing excluded rules: %w", err)
	}
	defer rows.Close()

	var out []kure.ExcludedRule
	for rows.Next() {
		var er kure.ExcludedRule
		if err := rows.Scan(&er.ID, &er.RuleTitle, &er.Namespace, &er.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, er)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteExcludedRule(ctx context.Context, id int64) (*kure.ExcludedRule, error) {
	row := s.pool.QueryRow(ctx, `DELETE FROM excluded_rules WHERE id=$1 RETURNING id, rule_title, namespace, created_at`, id)
	var er kure.ExcludedRule
	if err := row.Scan(&er.ID, &er.RuleTitle, &er.Namespace, &er.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, kure.NotFoundError("excluded rule %d not found", id)
		}
		return nil, fmt.Errorf("deleting excluded rule: %w", err)
	}
	return &er, nil
}

func (s *Postgres) AddTrustedRegistry(ctx context.Context, registry string) (*kure.TrustedRegistry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO trusted_registries (registry, created_at) VALUES ($1, $2)
		ON CONFLICT (registry) DO NOTHING
		RETURNING id, registry, created_at`, registry, now())

	var tr kure.TrustedRegistry
	err := row.Scan(&tr.ID, &tr.Registry, &tr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		row = s.pool.QueryRow(ctx, `SELECT id, registry, created_at FROM trusted_registries WHERE registry=$1`, registry)
		if err := row.Scan(&tr.ID, &tr.Registry, &tr.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("fetching existing trusted registry: %w", err)
		}
		return &tr, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("inserting trusted registry: %w", err)
	}
	return &tr, true, nil
}

func (s *Postgres) ListTrustedRegistries(ctx context.Context) ([]kure.TrustedRegistry, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, registry, created_at FROM trusted_registries ORDER BY registry`)
	if err != nil {
		return nil, fmt.Errorf("listing trusted registries: %w", err)
	}
	defer rows.Close()

	var out []kure.TrustedRegistry
	for rows.Next() {
		var tr kure.TrustedRegistry
		if err := rows.Scan(&tr.ID, &tr.Registry, &tr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteTrustedRegistry(ctx context.Context, id int64) (*kure.TrustedRegistry, error) {
	row := s.pool.QueryRow(ctx, `DELETE FROM trusted_registries WHERE id=$1 RETURNING id, registry, created_at`, id)
	var tr kure.TrustedRegistry
	if err := row.Scan(&tr.ID, &tr.Registry, &tr.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, kure.NotFoundError("trusted registry %d not found", id)
		}
		return nil, fmt.Errorf("deleting trusted registry: %w", err)
	}
	return &tr, nil
}

// --- Settings ---

func (s *Postgres) GetSetting(ctx context.Context, key string) (string, error) {
	row := s.pool.QueryRow(ctx, `SELECT value FROM app_settings WHERE key=$1`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("getting setting %s: %w", key, err)
	}
	return value, nil
}

func (s *Postgres) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO app_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

func (s *Postgres) GetNotificationSetting(ctx context.Context, provider string) (*kure.NotificationSetting, error) {
	row := s.pool.QueryRow(ctx, `SELECT provider, config, enabled FROM notification_settings WHERE provider=$1`, provider)
	var ns kure.NotificationSetting
	if err := row.Scan(&ns.Provider, &ns.Config, &ns.Enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, kure.NotFoundError("notification setting %s not found", provider)
		}
		return nil, fmt.Errorf("getting notification setting: %w", err)
	}
	return &ns, nil
}

func (s *Postgres) SetNotificationSetting(ctx context.Context, setting kure.NotificationSetting) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_settings (provider, config, enabled) VALUES ($1, $2, $3)
		ON CONFLICT (provider) DO UPDATE SET config = EXCLUDED.config, enabled = EXCLUDED.enabled`,
		setting.Provider, setting.Config, setting.Enabled)
	if err != nil {
		return fmt.Errorf("setting notification config: %w", err)
	}
	return nil
}

func (s *Postgres) GetLLMConfig(ctx context.Context) (*kure.LLMConfig, error) {
	row := s.pool.QueryRow(ctx, `SELECT provider, api_key, model, base_url FROM llm_config WHERE id = 1`)
	var cfg kure.LLMConfig
	if err := row.Scan(&cfg.Provider, &cfg.APIKey, &cfg.Model, &cfg.BaseURL); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, kure.NotFoundError("llm config not set")
		}
		return nil, fmt.Errorf("getting llm config: %w", err)
	}
	return &cfg, nil
}

func (s *Postgres) SetLLMConfig(ctx context.Context, cfg kure.LLMConfig) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO llm_config (id, provider, api_key, model, base_url) VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			provider = EXCLUDED.provider, api_key = EXCLUDED.api_key,
			model = EXCLUDED.model, base_url = EXCLUDED.base_url`,
		cfg.Provider, cfg.APIKey, cfg.Model, cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("setting llm config: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
