package ovenrack

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ovenrack/ovenrack/wire"
)

// QueryLog writes one line per answered query, as TSV or LTSV.
type QueryLog struct {
	sync.Mutex
	logger        io.Writer
	format        string
	ignoredQtypes []string
	now           func() time.Time
}

func NewQueryLog(logger io.Writer, format string, ignoredQtypes []string) (*QueryLog, error) {
	if logger == nil {
		return nil, errors.New("Log file not initialized")
	}
	format = strings.ToLower(format)
	if format != "tsv" && format != "ltsv" {
		return nil, &ConfigError{Setting: "query_log.format", Value: format, Reason: "must be tsv or ltsv"}
	}
	for _, qtype := range ignoredQtypes {
		if _, ok := wire.TypeFromString(strings.ToUpper(qtype)); !ok {
			return nil, &ConfigError{Setting: "query_log.ignored_qtypes", Value: qtype, Reason: "unknown record type"}
		}
	}
	return &QueryLog{logger: logger, format: format, ignoredQtypes: ignoredQtypes, now: time.Now}, nil
}

func rcodeString(rcode int) string {
	switch rcode {
	case wire.RcodeSuccess:
		return "NOERROR"
	case wire.RcodeFormatError:
		return "FORMERR"
	case wire.RcodeServerFailure:
		return "SERVFAIL"
	case wire.RcodeNameError:
		return "NXDOMAIN"
	case wire.RcodeNotImplemented:
		return "NOTIMP"
	case wire.RcodeRefused:
		return "REFUSED"
	}
	return "RCODE" + strconv.Itoa(rcode)
}

func (queryLog *QueryLog) Log(clientAddr net.Addr, request *wire.Message, response *wire.Message, source string, duration time.Duration) error {
	if len(request.Questions) == 0 {
		return nil
	}
	question := request.Questions[0]
	qType := wire.TypeString(question.Type)
	for _, ignoredQtype := range queryLog.ignoredQtypes {
		if strings.EqualFold(ignoredQtype, qType) {
			return nil
		}
	}
	clientIPStr := "-"
	switch addr := clientAddr.(type) {
	case *net.UDPAddr:
		clientIPStr = addr.IP.String()
	case nil:
	default:
		clientIPStr = addr.String()
	}
	qName := strings.TrimSuffix(question.Name.String(), ".")
	if len(qName) == 0 {
		qName = "."
	}
	returnCode := rcodeString(response.Header.Rcode())
	now := queryLog.now()

	var line string
	if queryLog.format == "tsv" {
		year, month, day := now.Date()
		hour, minute, second := now.Clock()
		tsStr := fmt.Sprintf("[%d-%02d-%02d %02d:%02d:%02d]", year, int(month), day, hour, minute, second)
		line = fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%d\t%dms\t%s\t%d\n", tsStr, clientIPStr, StringQuote(qName), qType,
			returnCode, len(response.Answers), duration.Milliseconds(), StringQuote(source), request.Header.ID)
	} else {
		line = fmt.Sprintf("time:%d\thost:%s\tmessage:%s\ttype:%s\treturn:%s\tanswers:%d\tduration:%d\tserver:%s\tid:%d\n",
			now.Unix(), clientIPStr, StringQuote(qName), qType,
			returnCode, len(response.Answers), duration.Milliseconds(), StringQuote(source), request.Header.ID)
	}
	queryLog.Lock()
	defer queryLog.Unlock()
	_, err := io.WriteString(queryLog.logger, line)
	return err
}
