package export_test

import (
	"bytes"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"welfareflow/internal/domain"
	"welfareflow/internal/export"
	"welfareflow/internal/listing"
	"welfareflow/internal/testutil"
)

func setup(t *testing.T) (testutil.Env, export.Service) {
	t.Helper()
	env := testutil.NewEnv(t)
	env.Submit(t, "REF-1", "Asha Devi")
	env.Submit(t, "REF-2", "Bansi Lal")
	require.NoError(t, env.Engine.AddToPool(env.Ctx, testutil.TSWO, 1, "REF-2"))
	svc := export.Service{
		Listing: listing.Service{Repo: env.Engine.Repo},
		Now:     func() time.Time { return testutil.Clock },
	}
	return env, svc
}

func pending(format string) export.Request {
	return export.Request{
		Request: listing.Request{ServiceID: 1, StatusFilter: domain.StatusPending},
		Format:  format,
	}
}

func TestCSVIncludesPoolRowsWithoutActions(t *testing.T) {
	env, svc := setup(t)
	rep, err := svc.Export(env.Ctx, testutil.TSWO, pending("CSV"))
	require.NoError(t, err)
	assert.Equal(t, "text/csv", rep.ContentType)
	assert.Equal(t, "Report_All_20240301103000.csv", rep.Filename)

	records, err := csv.NewReader(bytes.NewReader(rep.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"S.No", "Reference Number", "Applicant Name", "Service", "Status", "Submission Date", "Last Action On"}, records[0])
	assert.Equal(t, "REF-1", records[1][1])
	assert.Equal(t, "REF-2", records[2][1])
	assert.Equal(t, "01 Mar 2024", records[1][5])
}

func TestPoolRowsContinueSerialNumbers(t *testing.T) {
	env, svc := setup(t)
	env.Submit(t, "REF-3", "Chuni Lal")
	rep, err := svc.Export(env.Ctx, testutil.TSWO, pending(export.FormatCSV))
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(rep.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"REF-1", "REF-3", "REF-2"}, []string{records[1][1], records[2][1], records[3][1]})
	assert.Equal(t, []string{"1", "2", "3"}, []string{records[1][0], records[2][0], records[3][0]})
}

func TestExcelWorkbook(t *testing.T) {
	env, svc := setup(t)
	req := pending(export.FormatExcel)
	req.ColumnOrder = []string{"applicantName"}
	rep, err := svc.Export(env.Ctx, testutil.TSWO, req)
	require.NoError(t, err)
	assert.Equal(t, "Report_All_20240301103000.xlsx", rep.Filename)

	f, err := excelize.OpenReader(bytes.NewReader(rep.Body))
	require.NoError(t, err)
	defer f.Close()
	header, err := f.GetCellValue("Report", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Applicant Name", header)
	name, err := f.GetCellValue("Report", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Asha Devi", name)
	pooled, err := f.GetCellValue("Report", "A3")
	require.NoError(t, err)
	assert.Equal(t, "Bansi Lal", pooled)
}

func TestPDFReport(t *testing.T) {
	env, svc := setup(t)
	req := pending(export.FormatPDF)
	req.Scope = "InView"
	rep, err := svc.Export(env.Ctx, testutil.TSWO, req)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", rep.ContentType)
	assert.Equal(t, "Report_InView_20240301103000.pdf", rep.Filename)
	assert.True(t, bytes.HasPrefix(rep.Body, []byte("%PDF")))
}

func TestUnsupportedFormat(t *testing.T) {
	env, svc := setup(t)
	_, err := svc.Export(env.Ctx, testutil.TSWO, pending("docx"))
	assert.True(t, errors.Is(err, export.ErrUnsupportedFormat))
}

func TestListingErrorsPropagate(t *testing.T) {
	env, svc := setup(t)
	req := pending(export.FormatCSV)
	req.DataType = "archive"
	_, err := svc.Export(env.Ctx, testutil.TSWO, req)
	assert.True(t, errors.Is(err, listing.ErrInvalidRequest))
}

func TestFilename(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "Report_Pending_20250102030405.pdf", export.Filename("Pending", "pdf", at))
}
