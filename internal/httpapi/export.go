package httpapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"qayd/backend/internal/domain"
)

func centsToDecimal(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func salesReportToCSV(report domain.SalesReport) string {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	_ = writer.Write([]string{"branch_id", "date", "orders", "gross", "discount", "delivery_fee", "vat", "net"})
	_ = writer.Write([]string{
		report.BranchID,
		report.Date,
		strconv.FormatInt(report.Orders, 10),
		centsToDecimal(report.GrossCents),
		centsToDecimal(report.DiscountCents),
		centsToDecimal(report.DeliveryFeeCents),
		centsToDecimal(report.TaxCents),
		centsToDecimal(report.NetCents),
	})
	_ = writer.Write(nil)

	_ = writer.Write([]string{"payment_method", "orders", "total"})
	for _, pay := range report.ByPayment {
		_ = writer.Write([]string{pay.Method, strconv.FormatInt(pay.Orders, 10), centsToDecimal(pay.TotalCents)})
	}
	_ = writer.Write(nil)

	_ = writer.Write([]string{"order_source", "orders", "total"})
	for _, src := range report.BySource {
		_ = writer.Write([]string{src.Source, strconv.FormatInt(src.Orders, 10), centsToDecimal(src.TotalCents)})
	}

	writer.Flush()
	return buf.String()
}

func productSalesReportToCSV(report domain.ProductSalesReport) string {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	_ = writer.Write([]string{"product_id", "name", "unit", "qty_sold", "revenue"})
	for _, row := range report.Rows {
		_ = writer.Write([]string{
			row.ProductID,
			row.Name,
			row.Unit,
			strconv.FormatFloat(row.QtySold, 'f', 3, 64),
			centsToDecimal(row.RevenueCents),
		})
	}

	writer.Flush()
	return buf.String()
}

var salesReportTmpl = template.Must(template.New("sales-report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Sales Report {{.Report.Date}}</title>
<style>
  body { font-family: sans-serif; margin: 2rem; color: #222; }
  h1 { font-size: 1.3rem; }
  table { border-collapse: collapse; margin-bottom: 1.5rem; min-width: 24rem; }
  th, td { border: 1px solid #999; padding: 0.35rem 0.7rem; text-align: left; }
  td.num { text-align: right; }
  @media print { body { margin: 0.5rem; } }
</style>
</head>
<body>
<h1>Sales Report &mdash; {{.Report.BranchID}} &mdash; {{.Report.Date}}</h1>
<table>
  <tr><th>Orders</th><td class="num">{{.Report.Orders}}</td></tr>
  <tr><th>Gross</th><td class="num">{{.Gross}}</td></tr>
  <tr><th>Discount</th><td class="num">{{.Discount}}</td></tr>
  <tr><th>Delivery fees</th><td class="num">{{.DeliveryFee}}</td></tr>
  <tr><th>VAT</th><td class="num">{{.Tax}}</td></tr>
  <tr><th>Net</th><td class="num">{{.Net}}</td></tr>
</table>
<h2>By payment method</h2>
<table>
  <tr><th>Method</th><th>Orders</th><th>Total</th></tr>
  {{range .Payments}}<tr><td>{{.Method}}</td><td class="num">{{.Orders}}</td><td class="num">{{.Total}}</td></tr>
  {{end}}
</table>
<h2>By order source</h2>
<table>
  <tr><th>Source</th><th>Orders</th><th>Total</th></tr>
  {{range .Sources}}<tr><td>{{.Source}}</td><td class="num">{{.Orders}}</td><td class="num">{{.Total}}</td></tr>
  {{end}}
</table>
<script>window.print();</script>
</body>
</html>`))

func salesReportToPrintableHTML(report domain.SalesReport) string {
	type paymentRow struct {
		Method string
		Orders int64
		Total  string
	}
	type sourceRow struct {
		Source string
		Orders int64
		Total  string
	}
	data := struct {
		Report      domain.SalesReport
		Gross       string
		Discount    string
		DeliveryFee string
		Tax         string
		Net         string
		Payments    []paymentRow
		Sources     []sourceRow
	}{
		Report:      report,
		Gross:       centsToDecimal(report.GrossCents),
		Discount:    centsToDecimal(report.DiscountCents),
		DeliveryFee: centsToDecimal(report.DeliveryFeeCents),
		Tax:         centsToDecimal(report.TaxCents),
		Net:         centsToDecimal(report.NetCents),
	}
	for _, pay := range report.ByPayment {
		data.Payments = append(data.Payments, paymentRow{Method: pay.Method, Orders: pay.Orders, Total: centsToDecimal(pay.TotalCents)})
	}
	for _, src := range report.BySource {
		data.Sources = append(data.Sources, sourceRow{Source: src.Source, Orders: src.Orders, Total: centsToDecimal(src.TotalCents)})
	}

	var buf strings.Builder
	if err := salesReportTmpl.Execute(&buf, data); err != nil {
		return "<html><body><p>report rendering failed</p></body></html>"
	}
	return buf.String()
}

func salesReportToXLSX(report domain.SalesReport) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	const sheet = "Sales"
	index, err := file.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	file.SetActiveSheet(index)
	_ = file.DeleteSheet("Sheet1")

	setRow := func(row int, values ...any) {
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = file.SetCellValue(sheet, cell, value)
		}
	}

	setRow(1, "Branch", report.BranchID)
	setRow(2, "Date", report.Date)
	setRow(3, "Orders", report.Orders)
	setRow(4, "Gross", centsToDecimal(report.GrossCents))
	setRow(5, "Discount", centsToDecimal(report.DiscountCents))
	setRow(6, "Delivery fees", centsToDecimal(report.DeliveryFeeCents))
	setRow(7, "VAT", centsToDecimal(report.TaxCents))
	setRow(8, "Net", centsToDecimal(report.NetCents))

	row := 10
	setRow(row, "Payment method", "Orders", "Total")
	for _, pay := range report.ByPayment {
		row++
		setRow(row, pay.Method, pay.Orders, centsToDecimal(pay.TotalCents))
	}

	row += 2
	setRow(row, "Order source", "Orders", "Total")
	for _, src := range report.BySource {
		row++
		setRow(row, src.Source, src.Orders, centsToDecimal(src.TotalCents))
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func productSalesReportToXLSX(report domain.ProductSalesReport) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	const sheet = "Products"
	index, err := file.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	file.SetActiveSheet(index)
	_ = file.DeleteSheet("Sheet1")

	headers := []any{"Product ID", "Name", "Unit", "Qty sold", "Revenue"}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = file.SetCellValue(sheet, cell, header)
	}

	for i, rowData := range report.Rows {
		values := []any{rowData.ProductID, rowData.Name, rowData.Unit, rowData.QtySold, centsToDecimal(rowData.RevenueCents)}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = file.SetCellValue(sheet, cell, value)
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
