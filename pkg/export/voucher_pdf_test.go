package export

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVoucherPDFRender(t *testing.T) {
	exporter := NewVoucherPDFExporter()

	data, err := exporter.Render(VoucherDocument{
		Number:     "SWO-2026-0042",
		Title:      "Robotics club inter-college meet",
		ClubName:   "Robotics Club",
		EventDate:  "2026-10-12",
		EventVenue: "Main auditorium",
		Budget:     "15000.00",
		Status:     "PASSED",
		CreatedBy:  "head@college.edu",
		Approvals: []ApprovalLine{
			{Actor: "head@college.edu", Role: "STUDENT_HEAD", Action: "SUBMIT", From: "DRAFT", To: "PENDING_FACULTY", At: "2026-09-01"},
			{Actor: "prof@college.edu", Role: "FACULTY", Action: "APPROVE", From: "PENDING_FACULTY", To: "PENDING_DEAN_SWO", At: "2026-09-02", Comment: "budget verified"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, data)
	require.Equal(t, "%PDF", string(data[:4]))
}

func TestVoucherPDFRequiresNumber(t *testing.T) {
	exporter := NewVoucherPDFExporter()
	_, err := exporter.Render(VoucherDocument{})
	require.Error(t, err)
}

func TestCSVExporterRender(t *testing.T) {
	exporter := NewCSVExporter()

	data, err := exporter.Render(Dataset{
		Headers: []string{"number", "status"},
		Rows: []map[string]string{
			{"number": "SWO-2026-0001", "status": "PASSED"},
		},
	})
	require.NoError(t, err)
	require.Contains(t, string(data), "SWO-2026-0001")
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	exporter := NewCSVExporter()
	_, err := exporter.Render(Dataset{})
	require.Error(t, err)
}
