package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/warp/port-invoice/generic"
	"github.com/warp/port-invoice/services"
)

// FetchTimeout bounds one sheet download.
const FetchTimeout = 15 * time.Second

// DefaultBaseURL is the Google Sheets endpoint.
const DefaultBaseURL = "https://docs.google.com/spreadsheets"

// Workbook keys used by DefaultSheets. Their spreadsheet IDs come from config.
const (
	WorkbookMisc      = "misc"
	WorkbookTransport = "transport"
	WorkbookStuffing  = "stuffing"
	WorkbookEMR       = "emr"
	WorkbookOps       = "ops"
	WorkbookMaster    = "master"
	WorkbookShore     = "shore_handling"
)

// SheetRef locates a table: a workbook key and a sheet (tab) name.
type SheetRef struct {
	Workbook string `yaml:"workbook" json:"workbook"`
	Sheet    string `yaml:"sheet" json:"sheet"`
}

// DefaultSheets maps every table to its tab in the operations workbooks.
var DefaultSheets = map[string]SheetRef{
	services.TableCCCSActivity:      {WorkbookMisc, "CCCSReport"},
	services.TableCrossStuffing:     {WorkbookMisc, "CrossStuffing"},
	services.TableCCCSStuffing:      {WorkbookMisc, "CCCSContainerStuffing"},
	services.TableByCatchTransfer:   {WorkbookMisc, "IPHSBycatchTransfer"},
	services.TableContainerTransfer: {WorkbookTransport, "Transfer"},
	services.TableScowTransfer:      {WorkbookTransport, "ScowTransfer"},
	services.TableLinerPallet:       {WorkbookStuffing, "LinerPallet"},
	services.TableContainerPlugin:   {WorkbookStuffing, "containerOperations"},
	services.TableEMRShifting:       {WorkbookEMR, "ContainerShifting"},
	services.TableWashing:           {WorkbookEMR, "ContainerCleaning"},
	services.TablePTI:               {WorkbookEMR, "PTI"},
	services.TableNetList:           {WorkbookOps, "UnloadingSummary"},
	services.TableWellToWell:        {WorkbookOps, "WelltoWell"},
	services.TablePrice:             {WorkbookMaster, "Price"},
	services.TableClient:            {WorkbookMaster, "Client"},
	services.TableSalt:              {WorkbookShore, "SaltOperation"},
	services.TableBinTipping:        {WorkbookShore, "BinTipping"},
}

// GSheet downloads sheets through the gviz CSV export.
type GSheet struct {
	BaseURL   string
	Sheets    map[string]SheetRef
	Workbooks map[string]string // workbook key -> spreadsheet ID
	Client    *http.Client
	Logger    *slog.Logger
}

// NewGSheet creates a Google Sheets source with a FetchTimeout client.
func NewGSheet(sheets map[string]SheetRef, workbooks map[string]string, logger *slog.Logger) *GSheet {
	if logger == nil {
		logger = slog.Default()
	}
	return &GSheet{
		BaseURL:   DefaultBaseURL,
		Sheets:    sheets,
		Workbooks: workbooks,
		Client:    &http.Client{Timeout: FetchTimeout},
		Logger:    logger,
	}
}

// URL returns the gviz export URL of a table.
func (g *GSheet) URL(name string) (string, error) {
	ref, ok := g.Sheets[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	id, ok := g.Workbooks[ref.Workbook]
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %s (no spreadsheet id for workbook %q)", ErrUnknownTable, name, ref.Workbook)
	}
	q := url.Values{}
	q.Set("tqx", "out:csv")
	q.Set("sheet", ref.Sheet)
	return fmt.Sprintf("%s/d/%s/gviz/tq?%s", g.BaseURL, url.PathEscape(id), q.Encode()), nil
}

// Fetch downloads and decodes one sheet.
func (g *GSheet) Fetch(ctx context.Context, name string) (*generic.Table, error) {
	u, err := g.URL(name)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", name, resp.Status)
	}
	t, err := DecodeCSV(name, resp.Body)
	if err != nil {
		return nil, err
	}
	g.Logger.Debug("sheet fetched", "table", name, "rows", t.Len(), "elapsed", time.Since(start))
	return t, nil
}
