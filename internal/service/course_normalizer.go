package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/quarter-scheduler/internal/dto"
	"github.com/noah-isme/quarter-scheduler/internal/models"
	appErrors "github.com/noah-isme/quarter-scheduler/pkg/errors"
)

type courseField int

const (
	fieldUnknown courseField = iota
	fieldTitle
	fieldCadence
	fieldSessions
	fieldNotes
)

// courseHeaderAliases maps canonicalized header spellings to Course fields.
var courseHeaderAliases = map[string]courseField{
	"title":              fieldTitle,
	"course":             fieldTitle,
	"course title":       fieldTitle,
	"course name":        fieldTitle,
	"name":               fieldTitle,
	"cadence":            fieldCadence,
	"cadence (weeks)":    fieldCadence,
	"cadence weeks":      fieldCadence,
	"cadence in weeks":   fieldCadence,
	"frequency":          fieldCadence,
	"frequency (weeks)":  fieldCadence,
	"repeat every":       fieldCadence,
	"sessions":           fieldSessions,
	"session count":      fieldSessions,
	"sessioncount":       fieldSessions,
	"# of sessions":      fieldSessions,
	"number of sessions": fieldSessions,
	"num sessions":       fieldSessions,
	"sessions per run":   fieldSessions,
	"notes":              fieldNotes,
	"note":               fieldNotes,
	"comments":           fieldNotes,
}

var (
	whitespaceRun    = regexp.MustCompile(`\s+`)
	leadingNumber    = regexp.MustCompile(`\d+`)
	fractionalNumber = regexp.MustCompile(`\d\s*[.,]\s*\d`)
)

var courseFieldNames = map[courseField]string{
	fieldTitle:    "title",
	fieldCadence:  "cadence",
	fieldSessions: "sessions",
	fieldNotes:    "notes",
}

// RecordField is one header/value cell of a course record.
type RecordField struct {
	Header string
	Value  string
}

// CourseRecord is a course row with its cells in column order.
type CourseRecord []RecordField

func canonicalHeader(raw string) string {
	raw = strings.TrimPrefix(raw, "\ufeff")
	raw = strings.ToLower(strings.TrimSpace(raw))
	raw = strings.NewReplacer("_", " ", "-", " ").Replace(raw)
	return whitespaceRun.ReplaceAllString(raw, " ")
}

// CourseNormalizer turns loosely shaped course records into models.Course.
type CourseNormalizer struct {
	validator  *validator.Validate
	maxCourses int
}

// NewCourseNormalizer constructs a normalizer. maxCourses <= 0 disables the limit.
func NewCourseNormalizer(validate *validator.Validate, maxCourses int) *CourseNormalizer {
	if validate == nil {
		validate = validator.New()
	}
	return &CourseNormalizer{validator: validate, maxCourses: maxCourses}
}

// Normalize converts course records. Records that cannot be turned into a
// valid course are reported and skipped; order of the accepted courses follows
// the input. Row numbers count the header as row 1.
func (n *CourseNormalizer) Normalize(records []CourseRecord) ([]models.Course, []dto.ImportIssue) {
	rows := make([]int, len(records))
	for i := range rows {
		rows[i] = i + 2
	}
	return n.normalize(records, rows)
}

func (n *CourseNormalizer) normalize(records []CourseRecord, rows []int) ([]models.Course, []dto.ImportIssue) {
	courses := make([]models.Course, 0, len(records))
	issues := make([]dto.ImportIssue, 0)
	for i, record := range records {
		row := rows[i]
		course, reason := n.normalizeRecord(record)
		if reason != "" {
			issues = append(issues, dto.ImportIssue{Row: row, Title: course.Title, Reason: reason})
			continue
		}
		if n.maxCourses > 0 && len(courses) >= n.maxCourses {
			issues = append(issues, dto.ImportIssue{Row: row, Title: course.Title, Reason: fmt.Sprintf("course limit %d reached", n.maxCourses)})
			continue
		}
		courses = append(courses, course)
	}
	return courses, issues
}

// ParseCSV reads a header row plus course rows.
func (n *CourseNormalizer) ParseCSV(r io.Reader) (*dto.ImportCoursesResponse, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course file is empty")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course file")
	}
	if !hasTitleColumn(header) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course file has no title column")
	}

	var (
		records []CourseRecord
		rows    []int
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course file")
		}
		if blankRow(row) {
			continue
		}
		record := make(CourseRecord, 0, len(header))
		for i, name := range header {
			if i < len(row) {
				record = append(record, RecordField{Header: name, Value: row[i]})
			}
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record)
		rows = append(rows, line)
	}

	courses, issues := n.normalize(records, rows)
	return &dto.ImportCoursesResponse{Courses: courses, Rejected: issues}, nil
}

// normalizeRecord resolves cells in column order. When several columns map to
// the same field, the first non-empty value is used; a later non-empty value
// that differs rejects the record.
func (n *CourseNormalizer) normalizeRecord(record CourseRecord) (models.Course, string) {
	var (
		course models.Course
		values = make(map[courseField]string, len(courseFieldNames))
		source = make(map[courseField]string, len(courseFieldNames))
		seen   = make(map[courseField]bool, len(courseFieldNames))
		clash  string
	)
	for _, cell := range record {
		field := courseHeaderAliases[canonicalHeader(cell.Header)]
		if field == fieldUnknown {
			continue
		}
		seen[field] = true
		value := strings.TrimSpace(cell.Value)
		if value == "" {
			continue
		}
		if current, ok := values[field]; ok {
			if current != value && clash == "" {
				clash = fmt.Sprintf("columns %q and %q give conflicting %s", source[field], cell.Header, courseFieldNames[field])
			}
			continue
		}
		values[field], source[field] = value, cell.Header
	}
	course.Title = values[fieldTitle]
	course.Notes = values[fieldNotes]
	rawCadence, rawSessions := values[fieldCadence], values[fieldSessions]
	if clash != "" {
		return course, clash
	}

	if course.Title == "" {
		return course, "title is empty"
	}
	if !seen[fieldCadence] {
		return course, "cadence column missing"
	}
	if !seen[fieldSessions] {
		return course, "sessions column missing"
	}

	cadence, ok := parseCadence(rawCadence)
	if !ok {
		return course, fmt.Sprintf("cadence %q is not a positive number of weeks", rawCadence)
	}
	sessions, ok := parsePositiveInt(rawSessions)
	if !ok {
		return course, fmt.Sprintf("sessions %q is not a positive number", rawSessions)
	}
	course.Cadence = cadence
	course.SessionCount = sessions

	if err := n.validator.Struct(course); err != nil {
		return course, err.Error()
	}
	return course, ""
}

func parseCadence(raw string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "weekly":
		return 1, true
	case "biweekly", "bi-weekly", "fortnightly":
		return 2, true
	case "monthly":
		return 4, true
	}
	return parsePositiveInt(raw)
}

// parsePositiveInt reads the first whole number in raw, so unit words such as
// "3 weeks" are accepted. Signed and fractional numbers are not.
func parsePositiveInt(raw string) (int, bool) {
	if strings.HasPrefix(strings.TrimSpace(raw), "-") || fractionalNumber.MatchString(raw) {
		return 0, false
	}
	digits := leadingNumber.FindString(raw)
	if digits == "" {
		return 0, false
	}
	value, err := strconv.Atoi(digits)
	if err != nil || value < 1 {
		return 0, false
	}
	return value, true
}

func hasTitleColumn(header []string) bool {
	for _, name := range header {
		if courseHeaderAliases[canonicalHeader(name)] == fieldTitle {
			return true
		}
	}
	return false
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
