package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/reconcile/backend/internal/application/fulfillment"
	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/ingest"
	"github.com/reconcile/backend/internal/domain/shared"
	csvimport "github.com/reconcile/backend/internal/infrastructure/import"
	"github.com/reconcile/backend/internal/infrastructure/telemetry"
)

// Batch processing defaults
const (
	DefaultPageSize  = 200
	DefaultMaxRows   = 50000
	DefaultMaxErrors = 100
)

// BatchConfig bounds one batch ingestion
type BatchConfig struct {
	// PageSize is the number of rows folded into the run per checkpoint
	PageSize int

	// MaxRows caps the data rows accepted per file
	MaxRows int

	// MaxErrors caps the failure details stored on the run. Failures past
	// the cap still count, they just carry no per-row detail.
	MaxErrors int
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxRows <= 0 {
		c.MaxRows = DefaultMaxRows
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = DefaultMaxErrors
	}
	return c
}

// OrderIngestor runs the single-order ingestion pipeline
type OrderIngestor interface {
	Ingest(ctx context.Context, req fulfillment.CreateOrderRequest) (*fulfillment.OrderIngestResponse, error)
}

// DistributionIngestor runs the single-record ingestion pipeline
type DistributionIngestor interface {
	Ingest(ctx context.Context, req fulfillment.CreateDistributionRequest) (*fulfillment.DistributionIngestResponse, error)
}

// BatchRequest is one uploaded feed file
type BatchRequest struct {
	Source   string
	FileName string
	Data     []byte
}

// BatchResponse summarizes a finished batch run
type BatchResponse struct {
	RunID           uuid.UUID               `json:"run_id"`
	Status          ingest.RunStatus        `json:"status"`
	TotalRows       int                     `json:"total_rows"`
	PagesCommitted  int                     `json:"pages_committed"`
	Report          ingest.Report           `json:"report"`
	Errors          []ingest.RunErrorDetail `json:"errors,omitempty"`
	ErrorsTruncated bool                    `json:"errors_truncated,omitempty"`
}

// rowOutcome is the classification of one processed row
type rowOutcome struct {
	report  ingest.Report
	details []ingest.RunErrorDetail
}

// BatchService ingests whole feed files of orders or distribution records.
// Every row runs through the same pipeline as single-record ingestion, so a
// batch and an API call land identically. Progress commits onto an
// ingestion run page by page: a crash keeps every committed page, and an
// operator cancel takes effect at the next checkpoint.
type BatchService struct {
	runRepo        ingest.RunRepository
	orders         OrderIngestor
	distributions  DistributionIngestor
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
	cfg            BatchConfig
}

// NewBatchService creates a new batch ingestion service
func NewBatchService(
	runRepo ingest.RunRepository,
	orders OrderIngestor,
	distributions DistributionIngestor,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
	cfg BatchConfig,
) *BatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{
		runRepo:        runRepo,
		orders:         orders,
		distributions:  distributions,
		eventPublisher: eventPublisher,
		logger:         logger,
		cfg:            cfg.withDefaults(),
	}
}

// IngestOrders processes a CSV file of commercial orders
func (s *BatchService) IngestOrders(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	return s.runBatch(ctx, ingest.RunKindOrders, req, orderFieldRules(), s.processOrderRow)
}

// IngestDistributions processes a CSV file of raw fulfillment lines
func (s *BatchService) IngestDistributions(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	return s.runBatch(ctx, ingest.RunKindDistributions, req, distributionFieldRules(), s.processDistributionRow)
}

type rowProcessor func(ctx context.Context, source identity.Source, row *csvimport.Row) rowOutcome

func (s *BatchService) runBatch(
	ctx context.Context,
	kind ingest.RunKind,
	req BatchRequest,
	rules []csvimport.FieldRule,
	process rowProcessor,
) (*BatchResponse, error) {
	source := identity.Source(req.Source)
	if !source.IsValid() {
		return nil, shared.NewDomainError("INVALID_SOURCE", fmt.Sprintf("Invalid source: %s", req.Source))
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "ingest", "run_batch")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrRunKind, string(kind),
		telemetry.SpanAttrSource, string(source),
		telemetry.SpanAttrFileName, req.FileName,
	)

	validator := csvimport.NewFieldValidator(rules)
	rows, malformed, err := s.parseFile(req.Data, validator)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	run, err := ingest.NewRun(kind, source, req.FileName, int64(len(req.Data)))
	if err != nil {
		return nil, err
	}
	if err := s.runRepo.Save(ctx, run); err != nil {
		return nil, err
	}
	if err := run.StartProcessing(len(rows) + len(malformed)); err != nil {
		return nil, err
	}
	if err := s.runRepo.Save(ctx, run); err != nil {
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrRunID, run.ID.String())

	var (
		page        ingest.Report
		pageDetails []ingest.RunErrorDetail
		kept        int
		truncated   bool
		cancelled   bool
	)
	addDetail := func(d ingest.RunErrorDetail) {
		if kept >= s.cfg.MaxErrors {
			truncated = true
			return
		}
		pageDetails = append(pageDetails, d)
		kept++
	}
	commitPage := func() error {
		if page == (ingest.Report{}) && len(pageDetails) == 0 {
			return nil
		}
		if err := run.RecordPage(page, pageDetails); err != nil {
			return err
		}
		if err := s.runRepo.Save(ctx, run); err != nil {
			return err
		}
		page = ingest.Report{}
		pageDetails = nil
		return nil
	}

	// Rows the CSV layer rejected fold into the first page
	for _, rowErr := range malformed {
		page.Failed++
		addDetail(ingest.RunErrorDetail{Row: rowErr.Row, Code: rowErr.Code, Message: rowErr.Message})
	}

	// The row loop dominates the run; label it for the profiler
	var loopErr error
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("batch_ingest", map[string]string{
		"kind":                         string(kind),
		telemetry.ProfilingLabelSource: string(source),
	}), func(c context.Context) {
		for i, row := range rows {
			select {
			case <-c.Done():
				cancelled = true
			default:
			}
			if cancelled {
				break
			}

			out := s.processRow(c, source, row, validator, process)
			page.Add(out.report)
			for _, d := range out.details {
				addDetail(d)
			}

			if (i+1)%s.cfg.PageSize == 0 {
				// Read the stored status before overwriting it, so an operator
				// cancel is not lost under this checkpoint
				cancelled = s.cancelRequested(c, run.ID)
				if err := commitPage(); err != nil {
					loopErr = err
					return
				}
			}
		}
	})
	if loopErr != nil {
		return nil, loopErr
	}

	if err := commitPage(); err != nil {
		return nil, err
	}

	if cancelled {
		if err := run.Cancel(); err != nil {
			return nil, err
		}
	} else if err := run.Complete(); err != nil {
		return nil, err
	}
	if err := s.runRepo.Save(ctx, run); err != nil {
		return nil, err
	}
	s.publishDomainEvents(ctx, run)

	s.logger.Info("batch ingestion finished",
		zap.String("run_id", run.ID.String()),
		zap.String("kind", string(kind)),
		zap.String("status", string(run.Status)),
		zap.Int("total_rows", run.TotalRows),
		zap.Int("created", run.Created),
		zap.Int("matched", run.Matched),
		zap.Int("skipped_duplicate", run.SkippedDuplicate),
		zap.Int("failed", run.Failed))

	return &BatchResponse{
		RunID:           run.ID,
		Status:          run.Status,
		TotalRows:       run.TotalRows,
		PagesCommitted:  run.PagesCommitted,
		Report:          run.Report(),
		Errors:          run.ErrorDetails,
		ErrorsTruncated: truncated,
	}, nil
}

// parseFile parses and structurally validates the uploaded file before any
// run record exists, so broken uploads never leave a run behind.
func (s *BatchService) parseFile(data []byte, validator *csvimport.FieldValidator) ([]*csvimport.Row, []csvimport.RowError, error) {
	if len(data) == 0 {
		return nil, nil, shared.NewDomainError("EMPTY_FILE", "Uploaded file is empty")
	}
	parser, err := csvimport.ParseBytes(data)
	if err != nil {
		return nil, nil, shared.NewDomainError("INVALID_FILE", err.Error())
	}
	if err := parser.ParseHeader(); err != nil {
		return nil, nil, shared.NewDomainError("INVALID_FILE", err.Error())
	}
	if missing := parser.MissingHeaders(validator.RequiredColumns()); len(missing) > 0 {
		return nil, nil, shared.NewDomainError("MISSING_COLUMNS",
			fmt.Sprintf("Missing required columns: %s", strings.Join(missing, ", ")))
	}
	rows, malformed, err := parser.ReadAll(s.cfg.MaxRows)
	if err != nil {
		return nil, nil, shared.NewDomainError("TOO_MANY_ROWS",
			fmt.Sprintf("File exceeds the limit of %d rows", s.cfg.MaxRows))
	}
	return rows, malformed, nil
}

// processRow validates one row and, when it passes, hands it to the pipeline
func (s *BatchService) processRow(
	ctx context.Context,
	source identity.Source,
	row *csvimport.Row,
	validator *csvimport.FieldValidator,
	process rowProcessor,
) rowOutcome {
	if rowErrs := validator.Validate(row); len(rowErrs) > 0 {
		out := rowOutcome{report: ingest.Report{Failed: 1}}
		for _, re := range rowErrs {
			out.details = append(out.details, ingest.RunErrorDetail{
				Row:         re.Row,
				ExternalKey: row.Get("external_key"),
				Code:        re.Code,
				Message:     re.Message,
			})
		}
		return out
	}
	return process(ctx, source, row)
}

func (s *BatchService) processOrderRow(ctx context.Context, source identity.Source, row *csvimport.Row) rowOutcome {
	orderDate, err := time.Parse(csvimport.DefaultDateFormat, row.Get("order_date"))
	if err != nil {
		return failureOutcome(row, shared.NewDomainError("INVALID_ORDER_DATE",
			"Order date must use format "+csvimport.DefaultDateFormat))
	}

	resp, err := s.orders.Ingest(ctx, fulfillment.CreateOrderRequest{
		OrderNumber:         row.Get("order_number"),
		OrderDate:           orderDate,
		ShipDate:            parseOptionalDate(row.Get("ship_date")),
		CustomerName:        row.Get("customer_name"),
		CustomerAddressLine: row.Get("address_line"),
		CustomerCity:        row.Get("city"),
		CustomerState:       row.Get("state"),
		CustomerPostalCode:  row.Get("postal_code"),
		CustomerEmail:       row.Get("email"),
		CustomerPhone:       row.Get("phone"),
		Source:              string(source),
		ExternalKey:         row.Get("external_key"),
	})
	if err != nil {
		return failureOutcome(row, err)
	}
	if !resp.Created {
		return rowOutcome{report: ingest.Report{SkippedDuplicate: 1}}
	}
	out := ingest.Report{Created: 1}
	if resp.MatchedDistributions > 0 {
		out.Matched = 1
	}
	return rowOutcome{report: out}
}

func (s *BatchService) processDistributionRow(ctx context.Context, source identity.Source, row *csvimport.Row) rowOutcome {
	quantity, err := decimal.NewFromString(row.Get("quantity"))
	if err != nil {
		return failureOutcome(row, shared.NewDomainError("INVALID_QUANTITY",
			"Quantity must be a decimal number"))
	}

	resp, err := s.distributions.Ingest(ctx, fulfillment.CreateDistributionRequest{
		OrderNumber: row.Get("order_number"),
		SKU:         row.Get("sku"),
		Quantity:    quantity,
		LotRaw:      row.Get("lot"),
		ShipDate:    parseOptionalDate(row.Get("ship_date")),
		Source:      string(source),
		ExternalKey: row.Get("external_key"),
		ShipToCity:  row.Get("ship_to_city"),
		ShipToState: row.Get("ship_to_state"),
		ShipToZip:   row.Get("ship_to_zip"),
	})
	if err != nil {
		return failureOutcome(row, err)
	}
	if !resp.Created {
		return rowOutcome{report: ingest.Report{SkippedDuplicate: 1}}
	}
	out := ingest.Report{Created: 1}
	if resp.MatchedOrderID != nil {
		out.Matched = 1
	}
	return rowOutcome{report: out}
}

// failureOutcome classifies a pipeline error as one failed row
func failureOutcome(row *csvimport.Row, err error) rowOutcome {
	code := "INGEST_FAILED"
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code = domainErr.Code
	}
	return rowOutcome{
		report: ingest.Report{Failed: 1},
		details: []ingest.RunErrorDetail{{
			Row:         row.Line,
			ExternalKey: row.Get("external_key"),
			Code:        code,
			Message:     err.Error(),
		}},
	}
}

// parseOptionalDate returns nil for blank values. Validation ran first, so
// a present value parses.
func parseOptionalDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(csvimport.DefaultDateFormat, value)
	if err != nil {
		return nil
	}
	return &t
}

// cancelRequested re-reads the stored run between pages so an operator
// cancel lands at the next checkpoint
func (s *BatchService) cancelRequested(ctx context.Context, id uuid.UUID) bool {
	fresh, err := s.runRepo.FindByID(ctx, id)
	if err != nil {
		s.logger.Warn("could not refresh run status",
			zap.String("run_id", id.String()),
			zap.Error(err))
		return false
	}
	return fresh.Status == ingest.RunStatusCancelled
}

// orderFieldRules validates order feed columns before the pipeline runs
func orderFieldRules() []csvimport.FieldRule {
	return []csvimport.FieldRule{
		csvimport.Field("order_number").Required().MaxLength(50).Build(),
		csvimport.Field("order_date").Required().Date().Build(),
		csvimport.Field("ship_date").Date().Build(),
		csvimport.Field("customer_name").Required().MaxLength(200).Build(),
		csvimport.Field("address_line").MaxLength(500).Build(),
		csvimport.Field("city").MaxLength(100).Build(),
		csvimport.Field("state").MaxLength(100).Build(),
		csvimport.Field("postal_code").MaxLength(20).Build(),
		csvimport.Field("email").Email().MaxLength(200).Build(),
		csvimport.Field("phone").MaxLength(50).Build(),
		csvimport.Field("external_key").Required().MaxLength(100).Build(),
	}
}

// distributionFieldRules validates distribution feed columns
func distributionFieldRules() []csvimport.FieldRule {
	return []csvimport.FieldRule{
		csvimport.Field("order_number").MaxLength(50).Build(),
		csvimport.Field("sku").Required().MaxLength(50).Build(),
		csvimport.Field("quantity").Required().Decimal().MinValue(decimal.Zero).Build(),
		csvimport.Field("lot").MaxLength(100).Build(),
		csvimport.Field("ship_date").Date().Build(),
		csvimport.Field("ship_to_city").MaxLength(100).Build(),
		csvimport.Field("ship_to_state").MaxLength(100).Build(),
		csvimport.Field("ship_to_zip").MaxLength(20).Build(),
		csvimport.Field("external_key").Required().MaxLength(100).Build(),
	}
}

// publishDomainEvents publishes pending aggregate events and clears them.
// Publish failures are logged, not propagated.
func (s *BatchService) publishDomainEvents(ctx context.Context, root shared.AggregateRoot) {
	if s.eventPublisher == nil {
		return
	}
	events := root.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish domain events", zap.Error(err))
	}
	root.ClearDomainEvents()
}
