package sync

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	body, _ := io.ReadAll(in.Body)
	f.body = body
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Destination_Write(t *testing.T) {
	fake := &fakeS3{}
	d := &S3Destination{client: fake, bucket: "ops", key: "reconciler/attempts.jsonl"}

	if err := d.Write(context.Background(), []byte("{}\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if aws.ToString(fake.input.Bucket) != "ops" || aws.ToString(fake.input.Key) != "reconciler/attempts.jsonl" {
		t.Errorf("bucket/key = %s/%s", aws.ToString(fake.input.Bucket), aws.ToString(fake.input.Key))
	}
	if aws.ToString(fake.input.ContentType) != "application/x-ndjson" {
		t.Errorf("content type = %q", aws.ToString(fake.input.ContentType))
	}
	if aws.ToInt64(fake.input.ContentLength) != 3 {
		t.Errorf("content length = %d, want 3", aws.ToInt64(fake.input.ContentLength))
	}
	if string(fake.body) != "{}\n" {
		t.Errorf("body = %q", fake.body)
	}
}

func TestS3Destination_WriteError(t *testing.T) {
	boom := errors.New("access denied")
	d := &S3Destination{client: &fakeS3{err: boom}, bucket: "ops", key: "k"}
	if err := d.Write(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapping %v", err, boom)
	}
}

func TestS3Destination_Name(t *testing.T) {
	d := &S3Destination{bucket: "ops", key: "a/b.jsonl"}
	if got := d.Name(); got != "s3://ops/a/b.jsonl" {
		t.Errorf("Name() = %q", got)
	}
}

func TestNewS3Destination_RequiresBucket(t *testing.T) {
	if _, err := NewS3Destination(context.Background(), "", "k", "us-east-1", ""); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

var _ Destination = (*S3Destination)(nil)
