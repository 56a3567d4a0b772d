package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/ledger-import/internal/dedup"
	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/store"
)

// Store implements store.Repository on BigQuery. Jobs and transactions are
// single rows kept current with DML updates; batch inserts go through the
// streaming inserter.
//
// SaveParseOutcome and Materialize write rows first and the job update last.
// A crash in between leaves the job PROCESSING, which the sweeper resolves;
// readers never see a terminal job with missing rows. Materialize additionally
// keys every expense on its source transaction (see expense.ExpenseID) and
// inserts through MERGE, so a confirm replayed over a partial write cannot
// double-create ledger entries.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// New creates a Store with its own BigQuery client.
func New(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("New: bigquery client: %w", err)
	}
	return NewWithClient(client, projectID, datasetID), nil
}

// NewWithClient creates a Store using the provided client.
func NewWithClient(client *bigquery.Client, projectID, datasetID string) *Store {
	return &Store{client: client, projectID: projectID, datasetID: datasetID}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) table(name string) *bigquery.Table {
	return s.client.DatasetInProject(s.projectID, s.datasetID).Table(name)
}

func (s *Store) qualified(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, name)
}

func (s *Store) runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return err
	}
	return status.Err()
}

func (s *Store) CreateJob(ctx context.Context, job *domain.ImportJob) error {
	if err := s.table(jobsTable).Inserter().Put(ctx, jobToRow(job)); err != nil {
		return fmt.Errorf("CreateJob: inserting row: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, userID, jobID string) (*domain.ImportJob, error) {
	q := s.client.Query(fmt.Sprintf(
		`SELECT * FROM %s WHERE job_id = @job_id AND user_id = @user_id`, s.qualified(jobsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "job_id", Value: jobID},
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetJob: query read: %w", err)
	}

	var r JobRow
	if err := it.Next(&r); err == iterator.Done {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, domain.ErrJobNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("GetJob: iterating: %w", err)
	}
	return rowToJob(&r), nil
}

func (s *Store) ListJobs(ctx context.Context, filter store.JobFilter) ([]*domain.ImportJob, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE TRUE`, s.qualified(jobsTable))
	var params []bigquery.QueryParameter

	if filter.UserID != "" {
		query += " AND user_id = @user_id"
		params = append(params, bigquery.QueryParameter{Name: "user_id", Value: filter.UserID})
	}
	if filter.Status != "" {
		query += " AND status = @status"
		params = append(params, bigquery.QueryParameter{Name: "status", Value: string(filter.Status)})
	}
	if filter.Source != "" {
		query += " AND source = @source"
		params = append(params, bigquery.QueryParameter{Name: "source", Value: string(filter.Source)})
	}
	query += " ORDER BY created_ts DESC"
	if filter.Limit > 0 {
		query += " LIMIT @row_limit"
		params = append(params, bigquery.QueryParameter{Name: "row_limit", Value: int64(filter.Limit)})
	}

	q := s.client.Query(query)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListJobs: query read: %w", err)
	}

	var jobs []*domain.ImportJob
	for {
		var r JobRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListJobs: iterating: %w", err)
		}
		jobs = append(jobs, rowToJob(&r))
	}
	return jobs, nil
}

func (s *Store) UpdateJob(ctx context.Context, job *domain.ImportJob) error {
	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s SET
			status = @status,
			bank_name = @bank_name,
			statement_period = @statement_period,
			total_parsed = @total_parsed,
			created_count = @created_count,
			duplicate_count = @duplicate_count,
			rejected_count = @rejected_count,
			error_message = @error_message,
			raw_model_output = @raw_model_output,
			updated_ts = @updated_ts,
			completed_ts = @completed_ts
		WHERE job_id = @job_id AND user_id = @user_id`, s.qualified(jobsTable)))

	row := jobToRow(job)
	var completed any
	if row.CompletedTS.Valid {
		completed = row.CompletedTS.Timestamp
	} else {
		completed = bigquery.NullTimestamp{}
	}
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: row.Status},
		{Name: "bank_name", Value: row.BankName},
		{Name: "statement_period", Value: row.StatementPeriod},
		{Name: "total_parsed", Value: row.TotalParsed},
		{Name: "created_count", Value: row.Created},
		{Name: "duplicate_count", Value: row.Duplicates},
		{Name: "rejected_count", Value: row.Rejected},
		{Name: "error_message", Value: row.ErrorMessage},
		{Name: "raw_model_output", Value: row.RawModelOutput},
		{Name: "updated_ts", Value: row.UpdatedTS},
		{Name: "completed_ts", Value: completed},
		{Name: "job_id", Value: row.JobID},
		{Name: "user_id", Value: row.UserID},
	}

	if err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("UpdateJob: %w", err)
	}
	return nil
}

func (s *Store) ListStuckJobs(ctx context.Context, cutoff time.Time) ([]*domain.ImportJob, error) {
	q := s.client.Query(fmt.Sprintf(
		`SELECT * FROM %s WHERE status = @status AND updated_ts < @cutoff`, s.qualified(jobsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(domain.JobProcessing)},
		{Name: "cutoff", Value: cutoff},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListStuckJobs: query read: %w", err)
	}

	var jobs []*domain.ImportJob
	for {
		var r JobRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListStuckJobs: iterating: %w", err)
		}
		jobs = append(jobs, rowToJob(&r))
	}
	return jobs, nil
}

func (s *Store) SaveParseOutcome(ctx context.Context, job *domain.ImportJob, txs []*domain.ParsedTransaction) error {
	if len(txs) > 0 {
		rows := make([]*TransactionRow, 0, len(txs))
		for _, tx := range txs {
			rows = append(rows, txToRow(tx))
		}
		if err := s.table(transactionsTable).Inserter().Put(ctx, rows); err != nil {
			return fmt.Errorf("SaveParseOutcome: inserting transactions: %w", err)
		}
	}
	if err := s.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("SaveParseOutcome: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, userID, txID string) (*domain.ParsedTransaction, error) {
	q := s.client.Query(fmt.Sprintf(
		`SELECT * FROM %s WHERE transaction_id = @tx_id AND user_id = @user_id`, s.qualified(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "tx_id", Value: txID},
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: query read: %w", err)
	}

	var r TransactionRow
	if err := it.Next(&r); err == iterator.Done {
		return nil, fmt.Errorf("GetTransaction: %s: %w", txID, domain.ErrJobNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("GetTransaction: iterating: %w", err)
	}
	return rowToTx(&r), nil
}

func (s *Store) ListTransactions(ctx context.Context, userID, jobID string) ([]*domain.ParsedTransaction, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT * FROM %s
		WHERE user_id = @user_id AND job_id = @job_id
		ORDER BY transaction_date, transaction_id`, s.qualified(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "job_id", Value: jobID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query read: %w", err)
	}

	var txs []*domain.ParsedTransaction
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iterating: %w", err)
		}
		txs = append(txs, rowToTx(&r))
	}
	return txs, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx *domain.ParsedTransaction) error {
	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s SET
			amount = @amount,
			currency = @currency,
			transaction_date = @transaction_date,
			description = @description,
			raw_merchant = @raw_merchant,
			merchant_key = @merchant_key,
			is_recurring_guess = @is_recurring_guess,
			confidence = @confidence,
			dedup_hash = @dedup_hash,
			status = @status,
			duplicate_of_id = @duplicate_of_id,
			expense_id = @expense_id,
			updated_ts = @updated_ts
		WHERE transaction_id = @tx_id AND user_id = @user_id`, s.qualified(transactionsTable)))

	row := txToRow(tx)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "amount", Value: row.Amount},
		{Name: "currency", Value: row.Currency},
		{Name: "transaction_date", Value: row.TransactionDate},
		{Name: "description", Value: row.Description},
		{Name: "raw_merchant", Value: row.RawMerchant},
		{Name: "merchant_key", Value: row.MerchantKey},
		{Name: "is_recurring_guess", Value: row.IsRecurringGuess},
		{Name: "confidence", Value: row.Confidence},
		{Name: "dedup_hash", Value: row.DedupHash},
		{Name: "status", Value: row.Status},
		{Name: "duplicate_of_id", Value: row.DuplicateOfID},
		{Name: "expense_id", Value: row.ExpenseID},
		{Name: "updated_ts", Value: row.UpdatedTS},
		{Name: "tx_id", Value: row.TransactionID},
		{Name: "user_id", Value: row.UserID},
	}

	if err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("UpdateTransaction: %w", err)
	}
	return nil
}

// Materialize writes expenses with a keyed MERGE rather than the streaming
// inserter: expense ids are derived from their source transaction id, so a
// confirm retried after a crash between the expense write and the transaction
// flips matches the existing rows instead of inserting them again.
func (s *Store) Materialize(ctx context.Context, job *domain.ImportJob, txs []*domain.ParsedTransaction, expenses []*domain.Expense) error {
	for _, exp := range expenses {
		if err := s.mergeExpense(ctx, exp); err != nil {
			return fmt.Errorf("Materialize: %w", err)
		}
	}
	for _, tx := range txs {
		if err := s.UpdateTransaction(ctx, tx); err != nil {
			return fmt.Errorf("Materialize: %w", err)
		}
	}
	if err := s.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("Materialize: %w", err)
	}
	return nil
}

func (s *Store) mergeExpense(ctx context.Context, exp *domain.Expense) error {
	q := s.client.Query(fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @expense_id AS expense_id) S
		ON T.expense_id = S.expense_id
		WHEN NOT MATCHED THEN INSERT (
			expense_id, user_id, category_id, amount, currency, expense_date,
			description, merchant, merchant_key, is_recurring,
			source_transaction_id, created_ts
		) VALUES (
			@expense_id, @user_id, @category_id, @amount, @currency, @expense_date,
			@description, @merchant, @merchant_key, @is_recurring,
			@source_transaction_id, @created_ts
		)`, s.qualified(expensesTable)))

	row := expenseToRow(exp)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "expense_id", Value: row.ExpenseID},
		{Name: "user_id", Value: row.UserID},
		{Name: "category_id", Value: row.CategoryID},
		{Name: "amount", Value: row.Amount},
		{Name: "currency", Value: row.Currency},
		{Name: "expense_date", Value: row.ExpenseDate},
		{Name: "description", Value: row.Description},
		{Name: "merchant", Value: row.Merchant},
		{Name: "merchant_key", Value: row.MerchantKey},
		{Name: "is_recurring", Value: row.IsRecurring},
		{Name: "source_transaction_id", Value: row.SourceTransactionID},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	if err := s.runDML(ctx, q); err != nil {
		return fmt.Errorf("mergeExpense: %s: %w", exp.ID, err)
	}
	return nil
}

func (s *Store) ListExpenses(ctx context.Context, userID string) ([]*domain.Expense, error) {
	q := s.client.Query(fmt.Sprintf(
		`SELECT * FROM %s WHERE user_id = @user_id ORDER BY expense_date`, s.qualified(expensesTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "user_id", Value: userID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListExpenses: query read: %w", err)
	}

	var expenses []*domain.Expense
	for {
		var r ExpenseRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListExpenses: iterating: %w", err)
		}
		exp, convErr := rowToExpense(&r)
		if convErr != nil {
			return nil, fmt.Errorf("ListExpenses: bad amount in row %s: %w", r.ExpenseID, convErr)
		}
		expenses = append(expenses, exp)
	}
	return expenses, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	q := s.client.Query(fmt.Sprintf(
		`SELECT * FROM %s WHERE category_id = @category_id`, s.qualified(categoriesTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "category_id", Value: id}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetCategory: query read: %w", err)
	}

	var r CategoryRow
	if err := it.Next(&r); err == iterator.Done {
		return nil, fmt.Errorf("GetCategory: %s: %w", id, domain.ErrJobNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("GetCategory: iterating: %w", err)
	}
	return &domain.Category{ID: r.CategoryID, Name: r.Name}, nil
}

// DedupSnapshot loads the user's prior transaction hashes and existing
// expenses in two queries. Rejected rows and duplicates never seed hashes.
func (s *Store) DedupSnapshot(ctx context.Context, userID, excludeJobID string) (*dedup.Snapshot, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT dedup_hash, MIN(transaction_id) AS transaction_id
		FROM %s
		WHERE user_id = @user_id
		  AND job_id != @exclude_job_id
		  AND status NOT IN ('REJECTED', 'DUPLICATE')
		GROUP BY dedup_hash`, s.qualified(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "exclude_job_id", Value: excludeJobID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("DedupSnapshot: query read: %w", err)
	}

	snapshot := &dedup.Snapshot{PreviousHashes: make(map[string]string)}
	for {
		var r struct {
			DedupHash     string `bigquery:"dedup_hash"`
			TransactionID string `bigquery:"transaction_id"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("DedupSnapshot: iterating hashes: %w", err)
		}
		snapshot.PreviousHashes[r.DedupHash] = r.TransactionID
	}

	expenses, err := s.ListExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("DedupSnapshot: %w", err)
	}
	snapshot.Expenses = expenses
	return snapshot, nil
}
