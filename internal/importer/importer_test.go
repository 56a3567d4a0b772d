package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-import/internal/completion"
	"github.com/dvloznov/ledger-import/internal/domain"
	"github.com/dvloznov/ledger-import/internal/events"
	"github.com/dvloznov/ledger-import/internal/expense"
	"github.com/dvloznov/ledger-import/internal/filestore"
	"github.com/dvloznov/ledger-import/internal/normalize"
	"github.com/dvloznov/ledger-import/internal/store"
	"github.com/dvloznov/ledger-import/internal/store/inmemory"
)

type fakeGenerator struct {
	resp *completion.Response
	err  error
}

func (f *fakeGenerator) Generate(ctx context.Context, req completion.Request) (*completion.Response, error) {
	return f.resp, f.err
}

type fixture struct {
	svc   *Service
	store *inmemory.Store
	files *filestore.MemoryStorage
	bus   *events.LogBus
	gen   *fakeGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := inmemory.New()
	files := filestore.NewMemoryStorage()
	bus := events.NewLogBus(zerolog.Nop())
	gen := &fakeGenerator{}
	rules := normalize.DefaultRules()
	mat := expense.NewMaterializer(repo, expense.NewRulesCatalog(rules), bus, zerolog.Nop())
	svc := New(repo, files, gen, rules, mat, bus, zerolog.Nop())
	return &fixture{svc: svc, store: repo, files: files, bus: bus, gen: gen}
}

func recentDay(offset int) string {
	return time.Now().UTC().AddDate(0, 0, offset).Format("2006-01-02")
}

func TestUploadStatement_CSVEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	csv := "Date,Description,Amount\n" +
		fmt.Sprintf("%s,POS PURCHASE - NETFLIX,-5000\n", recentDay(-3)) +
		fmt.Sprintf("%s,POS PURCHASE - NETFLIX,-5000\n", recentDay(-3)) +
		fmt.Sprintf("%s,TRANSFER TO JOHN DOE,-2000\n", recentDay(-2))

	job, err := f.svc.UploadStatement(ctx, "user-1", "statement.csv", "text/csv", []byte(csv))
	if err != nil {
		t.Fatalf("UploadStatement failed: %v", err)
	}
	if job.Status != domain.JobProcessing {
		t.Errorf("initial status = %s, want PROCESSING", job.Status)
	}
	if ok, _ := f.files.Exists(ctx, job.FileHandle); !ok {
		t.Error("original file not stored")
	}

	f.svc.Wait()

	got, err := f.svc.GetJob(ctx, "user-1", job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != domain.JobAwaitingReview {
		t.Fatalf("status = %s (%s), want AWAITING_REVIEW", got.Status, got.ErrorMessage)
	}
	if got.TotalParsed != 3 || got.Duplicates != 1 {
		t.Errorf("counters = parsed %d duplicates %d, want 3/1", got.TotalParsed, got.Duplicates)
	}

	txs, err := f.svc.ListTransactions(ctx, "user-1", job.ID)
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	var pending, duplicate int
	for _, tx := range txs {
		switch tx.Status {
		case domain.TxPending:
			pending++
		case domain.TxDuplicate:
			duplicate++
			if tx.DuplicateOfID == "" {
				t.Error("duplicate without duplicate_of reference")
			}
		}
	}
	if pending != 2 || duplicate != 1 {
		t.Errorf("pending %d duplicate %d, want 2/1", pending, duplicate)
	}
}

func TestUploadStatement_ReturnedJobIsASnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	csv := "Date,Description,Amount\n" +
		fmt.Sprintf("%s,POS PURCHASE - NETFLIX,-5000\n", recentDay(-3))

	job, err := f.svc.UploadStatement(ctx, "user-1", "statement.csv", "text/csv", []byte(csv))
	if err != nil {
		t.Fatalf("UploadStatement failed: %v", err)
	}

	f.svc.Wait()

	// The caller's job is the accepted-upload snapshot. The parse task works
	// on its own copy, so nothing here may have changed even after the task
	// finished; the repository carries the live record.
	if job.Status != domain.JobProcessing {
		t.Errorf("snapshot status = %s, want PROCESSING", job.Status)
	}
	if job.TotalParsed != 0 || job.BankName != "" || job.ErrorMessage != "" {
		t.Errorf("snapshot mutated by the parse task: %+v", job)
	}

	got, err := f.svc.GetJob(ctx, "user-1", job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != domain.JobAwaitingReview {
		t.Errorf("stored status = %s, want AWAITING_REVIEW", got.Status)
	}
}

func TestUploadStatement_RepeatImportMarksPreviousDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	csv := "Date,Description,Amount\n" +
		fmt.Sprintf("%s,POS PURCHASE - NETFLIX,-5000\n", recentDay(-3))

	first, err := f.svc.UploadStatement(ctx, "user-1", "a.csv", "text/csv", []byte(csv))
	if err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	f.svc.Wait()

	second, err := f.svc.UploadStatement(ctx, "user-1", "b.csv", "text/csv", []byte(csv))
	if err != nil {
		t.Fatalf("second upload failed: %v", err)
	}
	f.svc.Wait()

	got, _ := f.svc.GetJob(ctx, "user-1", second.ID)
	if got.Duplicates != 1 {
		t.Errorf("second import duplicates = %d, want 1", got.Duplicates)
	}
	// The first job is untouched.
	prev, _ := f.svc.GetJob(ctx, "user-1", first.ID)
	if prev.Duplicates != 0 {
		t.Errorf("first import duplicates = %d, want 0", prev.Duplicates)
	}
}

func TestUploadStatement_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	big := make([]byte, MaxFileSize+1)
	if _, err := f.svc.UploadStatement(ctx, "user-1", "big.csv", "text/csv", big); !errors.Is(err, domain.ErrFileTooLarge) {
		t.Errorf("oversize error = %v, want ErrFileTooLarge", err)
	}

	if _, err := f.svc.UploadStatement(ctx, "user-1", "notes.docx", "application/msword", []byte("x")); !errors.Is(err, domain.ErrInvalidFileType) {
		t.Errorf("bad type error = %v, want ErrInvalidFileType", err)
	}

	// Nothing was persisted for either refusal.
	jobs, _ := f.svc.ListJobs(ctx, store.JobFilter{UserID: "user-1"})
	if len(jobs) != 0 {
		t.Errorf("jobs after refusals = %d, want 0", len(jobs))
	}
}

func TestUploadStatement_UnparseablePDFFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	job, err := f.svc.UploadStatement(ctx, "user-1", "statement.pdf", "application/pdf", []byte("not a pdf at all"))
	if err != nil {
		t.Fatalf("upload should be accepted before parsing: %v", err)
	}
	f.svc.Wait()

	got, _ := f.svc.GetJob(ctx, "user-1", job.ID)
	if got.Status != domain.JobFailed || got.ErrorMessage == "" {
		t.Errorf("job = %+v, want FAILED with message", got)
	}
}

func TestProcessEmail_SchemaViolationFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gen.resp = &completion.Response{Content: `{"rows": []}`}

	job, err := f.svc.ProcessEmailWebhook(ctx, "user-1", "Debit Alert", "You spent NGN 500")
	if err != nil {
		t.Fatalf("webhook failed: %v", err)
	}
	f.svc.Wait()

	got, _ := f.svc.GetJob(ctx, "user-1", job.ID)
	if got.Status != domain.JobFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
}

func TestProcessEmail_ZeroTransactionsFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gen.resp = &completion.Response{Content: `{"transactions": []}`}

	job, _ := f.svc.ProcessEmailWebhook(ctx, "user-1", "FYI", "nothing here")
	f.svc.Wait()

	got, _ := f.svc.GetJob(ctx, "user-1", job.ID)
	if got.Status != domain.JobFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
}

func TestProcessEmail_AutoConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gen.resp = &completion.Response{Content: fmt.Sprintf(
		`{"transactions":[{"date":"%s","amount":-2500,"description":"POS purchase SHOPRITE","merchant":"SHOPRITE","type":"debit","confidence":0.95}],"currency":"NGN"}`,
		recentDay(-1))}

	job, err := f.svc.ProcessEmailWebhook(ctx, "user-1", "Debit Alert", "<p>POS purchase</p>")
	if err != nil {
		t.Fatalf("webhook failed: %v", err)
	}
	f.svc.Wait()

	got, _ := f.svc.GetJob(ctx, "user-1", job.ID)
	if got.Status != domain.JobCompleted || got.Created != 1 {
		t.Fatalf("job = %+v, want COMPLETED with 1 created", got)
	}

	expenses, _ := f.store.ListExpenses(ctx, "user-1")
	if len(expenses) != 1 || expenses[0].CategoryID != domain.AutoCategoryID {
		t.Fatalf("expenses = %+v, want one under the auto category", expenses)
	}

	names := map[string]bool{}
	for _, e := range f.bus.Recent() {
		names[e.Name] = true
	}
	for _, want := range []string{events.EmailImportCreated, events.ExpensesCreated, events.EmailAutoConfirmed} {
		if !names[want] {
			t.Errorf("event %s not published", want)
		}
	}
}

func TestProcessEmail_LowConfidenceStaysForReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gen.resp = &completion.Response{Content: fmt.Sprintf(
		`{"transactions":[{"date":"%s","amount":-2500,"description":"maybe a purchase","type":"debit","confidence":0.4}]}`,
		recentDay(-1))}

	job, _ := f.svc.ProcessEmailWebhook(ctx, "user-1", "Alert", "body")
	f.svc.Wait()

	got, _ := f.svc.GetJob(ctx, "user-1", job.ID)
	if got.Status != domain.JobAwaitingReview {
		t.Fatalf("status = %s, want AWAITING_REVIEW", got.Status)
	}
	expenses, _ := f.store.ListExpenses(ctx, "user-1")
	if len(expenses) != 0 {
		t.Error("low-confidence transaction was auto-confirmed")
	}
}

func TestUploadScreenshots_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.UploadScreenshots(ctx, "user-1", nil); !errors.Is(err, domain.ErrInvalidFileType) {
		t.Errorf("empty batch error = %v", err)
	}

	shots := []Screenshot{{FileName: "x.gif", ContentType: "image/gif", Data: []byte("gif")}}
	if _, err := f.svc.UploadScreenshots(ctx, "user-1", shots); !errors.Is(err, domain.ErrInvalidFileType) {
		t.Errorf("gif error = %v, want ErrInvalidFileType", err)
	}
}

func TestUploadScreenshots_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gen.resp = &completion.Response{Content: fmt.Sprintf(
		`{"transactions":[{"date":"%s","amount":-1200,"description":"Bolt trip","merchant":"BOLT","type":"debit","confidence":0.8}],"currency":"NGN"}`,
		recentDay(-1))}

	shots := []Screenshot{{FileName: "shot.png", ContentType: "image/png", Data: []byte("png")}}
	job, err := f.svc.UploadScreenshots(ctx, "user-1", shots)
	if err != nil {
		t.Fatalf("UploadScreenshots failed: %v", err)
	}
	f.svc.Wait()

	got, _ := f.svc.GetJob(ctx, "user-1", job.ID)
	if got.Status != domain.JobAwaitingReview || got.TotalParsed != 1 {
		t.Fatalf("job = %+v, want AWAITING_REVIEW with 1 parsed", got)
	}
}

func TestUpdateTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	csv := "Date,Description,Amount\n" +
		fmt.Sprintf("%s,POS PURCHASE - NETFLIX,-5000\n", recentDay(-3))
	job, _ := f.svc.UploadStatement(ctx, "user-1", "a.csv", "text/csv", []byte(csv))
	f.svc.Wait()

	txs, _ := f.svc.ListTransactions(ctx, "user-1", job.ID)
	if len(txs) != 1 {
		t.Fatalf("transactions = %d, want 1", len(txs))
	}
	tx := txs[0]

	merchant := "Spotify AB"
	updated, err := f.svc.UpdateTransaction(ctx, "user-1", tx.ID, TransactionUpdate{Merchant: &merchant})
	if err != nil {
		t.Fatalf("UpdateTransaction failed: %v", err)
	}
	if updated.MerchantKey != "spotify" {
		t.Errorf("merchant key = %q, want spotify", updated.MerchantKey)
	}
	if updated.DedupHash == tx.DedupHash {
		t.Error("dedup hash not re-derived after merchant edit")
	}

	// Reject bumps the job counter.
	if _, err := f.svc.UpdateTransaction(ctx, "user-1", tx.ID, TransactionUpdate{Reject: true}); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	got, _ := f.svc.GetJob(ctx, "user-1", job.ID)
	if got.Rejected != 1 {
		t.Errorf("rejected counter = %d, want 1", got.Rejected)
	}

	// Rejected is terminal for edits.
	if _, err := f.svc.UpdateTransaction(ctx, "user-1", tx.ID, TransactionUpdate{Merchant: &merchant}); !errors.Is(err, domain.ErrAlreadyProcessed) {
		t.Errorf("edit after reject error = %v, want ErrAlreadyProcessed", err)
	}
}

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stale := &domain.ImportJob{
		ID:        "job-stale",
		UserID:    "user-1",
		Source:    domain.SourceStatementPDF,
		Status:    domain.JobProcessing,
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
		UpdatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	fresh := &domain.ImportJob{
		ID:        "job-fresh",
		UserID:    "user-1",
		Source:    domain.SourceStatementPDF,
		Status:    domain.JobProcessing,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	f.store.CreateJob(ctx, stale)
	f.store.CreateJob(ctx, fresh)

	f.svc.SweepOnce(ctx, DefaultStuckTimeout)

	got, _ := f.svc.GetJob(ctx, "user-1", "job-stale")
	if got.Status != domain.JobFailed || !strings.Contains(got.ErrorMessage, "timed out") {
		t.Errorf("stale job = %+v, want FAILED timed out", got)
	}
	if got.CompletedAt == nil {
		t.Error("failed job has no completion time")
	}

	untouched, _ := f.svc.GetJob(ctx, "user-1", "job-fresh")
	if untouched.Status != domain.JobProcessing {
		t.Errorf("fresh job status = %s, want PROCESSING", untouched.Status)
	}
}
