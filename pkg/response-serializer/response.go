package serializer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/always-cache/fragment-gateway/rfc9111"
)

const (
	responseTimeHeaderName = "Fragment-Cache-Response-Time"
	requestTimeHeaderName  = "Fragment-Cache-Request-Time"
)

type TimedResponse struct {
	Response *http.Response
	// The value of the clock at the time of the request that resulted in the stored response.
	// Needed for age calculation.
	RequestTime time.Time
	// The value of the clock at the time the response was received.
	// Needed for age calculation.
	ResponseTime time.Time
}

// BytesToStoredResponse decodes a stored response. The returned response
// body reads from the stored bytes and req becomes its Request.
func BytesToStoredResponse(b []byte, req *http.Request) (TimedResponse, error) {
	sRes := TimedResponse{}
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return sRes, fmt.Errorf("Could not read stored response: %w", err)
	}
	resTimeInt, err := strconv.ParseInt(res.Header.Get(responseTimeHeaderName), 10, 64)
	if err != nil {
		return sRes, fmt.Errorf("Stored response has no response time: %w", err)
	}
	reqTimeInt, err := strconv.ParseInt(res.Header.Get(requestTimeHeaderName), 10, 64)
	if err != nil {
		return sRes, fmt.Errorf("Stored response has no request time: %w", err)
	}
	// delete extra headers
	res.Header.Del(responseTimeHeaderName)
	res.Header.Del(requestTimeHeaderName)
	res.Request = req
	sRes.Response = res
	sRes.ResponseTime = time.Unix(resTimeInt, 0)
	sRes.RequestTime = time.Unix(reqTimeInt, 0)
	return sRes, nil
}

// StoredResponseToBytes returns the HTTP/1.1 representation of the response
// with the given body, limited to the header fields that may be stored.
// The body of sRes.Response is neither read nor closed.
func StoredResponseToBytes(sRes TimedResponse, body []byte) ([]byte, error) {
	res := sRes.Response
	stored := &http.Response{
		Status:        res.Status,
		StatusCode:    res.StatusCode,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        rfc9111.StorableHeader(res.Header),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
	if stored.Header == nil {
		stored.Header = make(http.Header)
	}
	stored.Header.Set(responseTimeHeaderName, strconv.FormatInt(sRes.ResponseTime.Unix(), 10))
	stored.Header.Set(requestTimeHeaderName, strconv.FormatInt(sRes.RequestTime.Unix(), 10))
	buf := &bytes.Buffer{}
	if err := stored.Write(buf); err != nil {
		return nil, fmt.Errorf("Could not write response to bytes: %w", err)
	}
	return buf.Bytes(), nil
}
