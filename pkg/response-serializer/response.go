package serializer

import (
	"bufio"
	"bytes"
	"net/http"
)

// ResponseToBytes converts a response to a byte slice.
// It returns the HTTP/1.1 representation of the response.
// The response body is restored afterwards, so the response
// can still be written to a client.
func ResponseToBytes(res *http.Response) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	bts := buf.Bytes()
	// set response body back
	clonedRes, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(bts)), res.Request)
	if err != nil {
		return nil, err
	}
	res.Body = clonedRes.Body
	return bts, nil
}

// BytesToResponse converts a stored byte slice back to a http.Response.
func BytesToResponse(b []byte) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
}
