package resultlog

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// jsonMessage is the wire form shared by the JSON and snapshot views.
type jsonMessage struct {
	Category string `json:"category"`
	Location string `json:"location"`
	Message  string `json:"message"`
	MS       int64  `json:"ms"`
}

func toJSONMessage(m Message) jsonMessage {
	return jsonMessage{Category: m.Category.String(), Location: m.Location, Message: m.Text, MS: m.ElapsedMS}
}

func fromJSONMessage(j jsonMessage) (Message, error) {
	c, err := ParseCategory(j.Category)
	if err != nil {
		return Message{}, err
	}
	return Message{Category: c, Location: j.Location, Text: j.Message, ElapsedMS: j.MS}, nil
}

// WriteText writes the operator console view.
func (l *Log) WriteText(w io.Writer) error {
	var b strings.Builder
	b.WriteString("\n")
	if l.Len() == 0 {
		b.WriteString("[No Messages]\n")
	}
	for _, c := range Categories {
		msgs := l.ByCategory(c)
		if len(msgs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "=====| %s |===========\n", strings.ToUpper(c.String()))
		for _, m := range msgs {
			fmt.Fprintf(&b, "%s: %s\n", m.Location, m.Text)
		}
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// CSV renders the delimited view: category, location, message, ms.
func (l *Log) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"category", "location", "message", "ms"}); err != nil {
		return nil, err
	}
	for _, m := range l.Grouped() {
		row := []string{
			strings.ToUpper(m.Category.String()),
			m.Location,
			m.Text,
			strconv.FormatInt(m.ElapsedMS, 10),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// JSON renders the structured view: one array per category key, keys in
// category order.
func (l *Log) JSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, c := range Categories {
		msgs := l.ByCategory(c)
		items := make([]jsonMessage, 0, len(msgs))
		for _, m := range msgs {
			items = append(items, toJSONMessage(m))
		}
		data, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", c.Key(), err)
		}
		if i > 0 {
			buf.WriteString(",")
		}
		fmt.Fprintf(&buf, "%q:", c.Key())
		buf.Write(data)
	}
	buf.WriteString("}")
	return buf.Bytes(), nil
}

var htmlTmpl = template.Must(template.New("results").Parse(
	`{{if not .Fragment}}  <body>
{{end}}    <div class="container working-results">
{{range .Groups}}    <div class="row">
  <h2>{{.Title}}</h2>
<table border="0" class="dataframe">
  <thead>
    <tr style="text-align: left;">
      <th>Location</th>
      <th>Message</th>
    </tr>
  </thead>
  <tbody>
{{range .Messages}}    <tr>
      <td>{{.Location}}</td>
      <td>{{.Text}}</td>
    </tr>
{{end}}  </tbody>
</table>
    </div>
{{end}}    </div>
{{if not .Fragment}}  </body>
{{end}}`))

type htmlGroup struct {
	Title    string
	Messages []Message
}

// HTML renders the categorized table view. Every category gets a table,
// including empty ones.
func (l *Log) HTML(asFragment bool) (string, error) {
	data := struct {
		Fragment bool
		Groups   []htmlGroup
	}{Fragment: asFragment}
	for _, c := range Categories {
		data.Groups = append(data.Groups, htmlGroup{
			Title:    strings.ToUpper(c.String()),
			Messages: l.ByCategory(c),
		})
	}

	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

// ParseJSON rebuilds a log from the JSON view. Messages come back in the
// grouped export order.
func ParseJSON(data []byte, clock clockwork.Clock) (*Log, error) {
	var groups map[string][]jsonMessage
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("parse result json: %w", err)
	}
	l := New(clock)
	for _, c := range Categories {
		for _, j := range groups[c.Key()] {
			m, err := fromJSONMessage(j)
			if err != nil {
				return nil, err
			}
			l.messages = append(l.messages, m)
		}
	}
	return l, nil
}

// ParseCSV rebuilds a log from the CSV view.
func ParseCSV(data []byte, clock clockwork.Clock) (*Log, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse result csv: %w", err)
	}
	l := New(clock)
	for i, rec := range records {
		if i == 0 {
			continue
		}
		if len(rec) != 4 {
			return nil, fmt.Errorf("parse result csv: row %d has %d columns", i, len(rec))
		}
		c, err := ParseCategory(rec[0])
		if err != nil {
			return nil, err
		}
		ms, err := strconv.ParseInt(rec[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse result csv: row %d ms: %w", i, err)
		}
		l.messages = append(l.messages, Message{Category: c, Location: rec[1], Text: rec[2], ElapsedMS: ms})
	}
	return l, nil
}

// snapshot is the cache form: full insertion order plus run metadata.
type snapshot struct {
	RunID    string        `json:"run_id"`
	LoadedAt time.Time     `json:"loaded_at"`
	Messages []jsonMessage `json:"messages"`
}

// MarshalSnapshot encodes the log with its run id and start time so a cache
// can hand back an equivalent log later.
func (l *Log) MarshalSnapshot() ([]byte, error) {
	msgs := l.Messages()
	s := snapshot{RunID: l.runID, LoadedAt: l.loadedAt, Messages: make([]jsonMessage, 0, len(msgs))}
	for _, m := range msgs {
		s.Messages = append(s.Messages, toJSONMessage(m))
	}
	return json.Marshal(s)
}

// UnmarshalSnapshot restores a log written by MarshalSnapshot.
func UnmarshalSnapshot(data []byte, clock clockwork.Clock) (*Log, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	l := New(clock)
	if s.RunID != "" {
		l.runID = s.RunID
	}
	if !s.LoadedAt.IsZero() {
		l.loadedAt = s.LoadedAt
	}
	for _, j := range s.Messages {
		m, err := fromJSONMessage(j)
		if err != nil {
			return nil, err
		}
		l.messages = append(l.messages, m)
	}
	return l, nil
}
