package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
)

const jsonContentType = "application/json"

// File is one file part of a multipart upload.
type File struct {
	Field   string // form field, "file" when empty
	Name    string
	Content []byte
}

// Multipart is a multipart/form-data body. It is encoded afresh for every
// attempt with the writer's own boundary; a caller-supplied Content-Type
// never replaces it.
type Multipart struct {
	Fields map[string]string
	Files  []File
}

func (m *Multipart) encode() ([]byte, string, error) {
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	for key, value := range m.Fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}
	for _, f := range m.Files {
		field := f.Field
		if field == "" {
			field = "file"
		}
		part, err := writer.CreateFormFile(field, f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", fmt.Errorf("failed to write file content %s: %w", f.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

// encodedBody is the wire form of Options.Body.
type encodedBody struct {
	data        []byte
	contentType string // "" omits the header
	multipart   bool
}

// encodeBody applies the body rules: multipart and binary payloads carry
// no JSON content type, strings and raw JSON go out as-is, and any other
// value is serialized to JSON text.
func encodeBody(body any) (encodedBody, error) {
	switch b := body.(type) {
	case nil:
		return encodedBody{contentType: jsonContentType}, nil
	case *Multipart:
		data, ct, err := b.encode()
		if err != nil {
			return encodedBody{}, err
		}
		return encodedBody{data: data, contentType: ct, multipart: true}, nil
	case Multipart:
		return encodeBody(&b)
	case []byte:
		return encodedBody{data: b}, nil
	case string:
		return encodedBody{data: []byte(b), contentType: jsonContentType}, nil
	case json.RawMessage:
		return encodedBody{data: b, contentType: jsonContentType}, nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if err != nil {
			return encodedBody{}, fmt.Errorf("failed to read request body: %w", err)
		}
		return encodedBody{data: data}, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return encodedBody{}, fmt.Errorf("failed to marshal request body: %w", err)
		}
		return encodedBody{data: data, contentType: jsonContentType}, nil
	}
}

// BufferBody reads a streaming body into memory so every attempt of a
// retried call sends the same bytes. Other bodies are returned unchanged.
func BufferBody(opts Options) (Options, error) {
	r, ok := opts.Body.(io.Reader)
	if !ok {
		return opts, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return opts, fmt.Errorf("failed to read request body: %w", err)
	}
	opts.Body = data
	return opts, nil
}
