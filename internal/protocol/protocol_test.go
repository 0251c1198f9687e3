package protocol

import (
	"bytes"
	"testing"
)

func TestGetRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteGetRequest(&buf, "hello"); err != nil {
		t.Fatalf("WriteGetRequest: %v", err)
	}
	req, err := ReadRequest(&buf)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if req.Opcode != OpGet || req.Key != "hello" {
		t.Fatalf("req = %+v, want Opcode=OpGet Key=hello", req)
	}
}

func TestSetRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSetRequest(&buf, OpSet, "k", []byte("v")); err != nil {
		t.Fatalf("WriteSetRequest: %v", err)
	}
	req, err := ReadRequest(&buf)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if req.Opcode != OpSet || req.Key != "k" || string(req.Value) != "v" {
		t.Fatalf("req = %+v, want Opcode=OpSet Key=k Value=v", req)
	}
}

func TestSetAsyncRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSetRequest(&buf, OpSetAsync, "k2", []byte("v2")); err != nil {
		t.Fatalf("WriteSetRequest: %v", err)
	}
	req, err := ReadRequest(&buf)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if req.Opcode != OpSetAsync {
		t.Fatalf("Opcode = %v, want OpSetAsync", req.Opcode)
	}
}

func TestGetReplyFoundRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteGetReply(&buf, []byte("value"), true); err != nil {
		t.Fatalf("WriteGetReply: %v", err)
	}
	status, body, err := ReadReply(&buf)
	if err != nil {
		t.Fatalf("ReadReply: %v", err)
	}
	v, found, err := ParseGetReply(status, body)
	if err != nil || !found || string(v) != "value" {
		t.Fatalf("ParseGetReply = (%q, %v, %v), want (value, true, nil)", v, found, err)
	}
}

func TestGetReplyNotFoundRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteGetReply(&buf, nil, false); err != nil {
		t.Fatalf("WriteGetReply: %v", err)
	}
	status, body, err := ReadReply(&buf)
	if err != nil {
		t.Fatalf("ReadReply: %v", err)
	}
	_, found, err := ParseGetReply(status, body)
	if err != nil || found {
		t.Fatalf("ParseGetReply = (_, %v, %v), want (false, nil)", found, err)
	}
}

func TestSetReplyOKRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSetReply(&buf, nil); err != nil {
		t.Fatalf("WriteSetReply: %v", err)
	}
	status, body, err := ReadReply(&buf)
	if err != nil {
		t.Fatalf("ReadReply: %v", err)
	}
	if err := ParseSetReply(status, body); err != nil {
		t.Fatalf("ParseSetReply: %v", err)
	}
}

func TestErrorFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteError(&buf, ErrCodeBadRequest, "key too long"); err != nil {
		t.Fatalf("WriteError: %v", err)
	}
	status, body, err := ReadReply(&buf)
	if err != nil {
		t.Fatalf("ReadReply: %v", err)
	}
	if status != byte(ErrCodeBadRequest) || string(body) != "key too long" {
		t.Fatalf("status=%v body=%q, want %v, %q", status, body, ErrCodeBadRequest, "key too long")
	}
}

func TestWriteGetRequestRejectsOversizedKey(t *testing.T) {
	var buf bytes.Buffer
	longKey := make([]byte, 300)
	for i := range longKey {
		longKey[i] = 'a'
	}
	if err := WriteGetRequest(&buf, string(longKey)); err != ErrFieldTooLarge {
		t.Fatalf("WriteGetRequest with oversized key: err = %v, want ErrFieldTooLarge", err)
	}
}
