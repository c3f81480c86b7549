package grpcserver

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/fluxo/tsv-export/pkg/export"
	"github.com/fluxo/tsv-export/pkg/sink"
	"github.com/fluxo/tsv-export/pkg/taskmanager"
)

// Message layout:
//
//	{"metadata": {"request_id": "...", "format": "tsv", "filename": "users.tsv",
//	              "columns": ["id", {"name": "email", "width": 30}],
//	              "options": {"encoding": "utf-8", "line_separator": "lf",
//	                          "sheet_name": "Users", "start_row": 1}}}
//	{"batch": {"sequence": 1, "records": [["1", "alice"], ["2", null]]}}
const (
	fieldMetadata = "metadata"
	fieldBatch    = "batch"
)

// metadataFromStruct decodes and validates the first stream message.
func metadataFromStruct(s *structpb.Struct) (*export.Metadata, error) {
	fields := s.GetFields()

	md := &export.Metadata{}
	var err error
	if md.RequestID, err = stringField(fields, "request_id"); err != nil {
		return nil, err
	}
	if md.Filename, err = stringField(fields, "filename"); err != nil {
		return nil, err
	}

	format, err := stringField(fields, "format")
	if err != nil {
		return nil, err
	}
	if format == "" {
		return nil, fmt.Errorf("format must be specified")
	}
	if md.Format, err = export.ParseFormat(format); err != nil {
		return nil, err
	}

	columns := fields["columns"].GetListValue()
	for i, v := range columns.GetValues() {
		col, err := columnFromValue(v)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		md.Columns = append(md.Columns, col)
	}

	if opts := fields["options"].GetStructValue(); opts != nil {
		if md.Options, err = optionsFromStruct(opts); err != nil {
			return nil, err
		}
	}

	if err := md.Validate(); err != nil {
		return nil, err
	}
	if _, err := sink.LookupEncoding(md.Options.Encoding); err != nil {
		return nil, err
	}
	if _, err := sink.ParseLineSeparator(md.Options.LineSeparator); err != nil {
		return nil, err
	}
	return md, nil
}

func columnFromValue(v *structpb.Value) (export.Column, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return export.Column{Name: k.StringValue}, nil
	case *structpb.Value_StructValue:
		fields := k.StructValue.GetFields()
		name, err := stringField(fields, "name")
		if err != nil {
			return export.Column{}, err
		}
		width, err := intField(fields, "width")
		if err != nil {
			return export.Column{}, err
		}
		return export.Column{Name: name, Width: width}, nil
	default:
		return export.Column{}, fmt.Errorf("must be a name or an object")
	}
}

func optionsFromStruct(s *structpb.Struct) (export.Options, error) {
	fields := s.GetFields()

	var opts export.Options
	var err error
	if opts.Encoding, err = stringField(fields, "encoding"); err != nil {
		return opts, err
	}
	if opts.LineSeparator, err = stringField(fields, "line_separator"); err != nil {
		return opts, err
	}
	if opts.SheetName, err = stringField(fields, "sheet_name"); err != nil {
		return opts, err
	}
	if opts.StartRow, err = intField(fields, "start_row"); err != nil {
		return opts, err
	}
	return opts, nil
}

// recordsFromBatch decodes a batch. Cells must be strings or null; null is
// written as an empty cell and nothing else is converted.
func recordsFromBatch(batch *structpb.Struct) (sequence int, records []export.Record, err error) {
	fields := batch.GetFields()
	if sequence, err = intField(fields, "sequence"); err != nil {
		return 0, nil, err
	}

	rows := fields["records"].GetListValue().GetValues()
	records = make([]export.Record, len(rows))
	for i, row := range rows {
		list, ok := row.GetKind().(*structpb.Value_ListValue)
		if !ok {
			return 0, nil, fmt.Errorf("record %d must be a list", i)
		}
		cells := list.ListValue.GetValues()
		values := make([]string, len(cells))
		for j, cell := range cells {
			switch k := cell.GetKind().(type) {
			case *structpb.Value_StringValue:
				values[j] = k.StringValue
			case *structpb.Value_NullValue, nil:
				values[j] = ""
			default:
				return 0, nil, fmt.Errorf("record %d cell %d must be a string or null", i, j)
			}
		}
		records[i] = export.Record{Values: values}
	}
	return sequence, records, nil
}

func stringField(fields map[string]*structpb.Value, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_NullValue:
		return "", nil
	default:
		return "", fmt.Errorf("%s must be a string", key)
	}
}

func intField(fields map[string]*structpb.Value, key string) (int, error) {
	v, ok := fields[key]
	if !ok {
		return 0, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n != math.Trunc(n) || n < 0 || n > math.MaxInt32 {
			return 0, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return int(n), nil
	case *structpb.Value_NullValue:
		return 0, nil
	default:
		return 0, fmt.Errorf("%s must be a number", key)
	}
}

// snapshotToStruct encodes a task snapshot as the response payload.
func snapshotToStruct(snap *taskmanager.Snapshot) (*structpb.Struct, error) {
	m := map[string]interface{}{
		"task_id":           snap.TaskID,
		"request_id":        snap.RequestID,
		"status":            snap.Status.String(),
		"format":            snap.Format.String(),
		"filename":          snap.Filename,
		"records_processed": snap.RecordsProcessed,
		"lines_written":     snap.LinesWritten,
		"location":          snap.Location,
		"file_size_bytes":   snap.FileSizeBytes,
		"checksum":          snap.Checksum,
		"start_time":        snap.StartTime.Unix(),
	}
	if !snap.CompletionTime.IsZero() {
		m["completion_time"] = snap.CompletionTime.Unix()
	}
	if snap.ErrorCode != "" {
		m["error_code"] = snap.ErrorCode
		m["error_message"] = snap.ErrorMessage
	}
	return structpb.NewStruct(m)
}
