package backend

import "testing"

func TestS3_PublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  S3Config
		path string
		want string
	}{
		{
			name: "стандартная схема AWS",
			cfg: S3Config{
				Bucket:    "snap-drop",
				Region:    "eu-central-1",
				KeyPrefix: "snap-drop-uploads",
			},
			path: "jane-20250925-144230/a.jpg",
			want: "https://snap-drop.s3.eu-central-1.amazonaws.com/snap-drop-uploads/jane-20250925-144230/a.jpg",
		},
		{
			name: "кастомный endpoint (path-style)",
			cfg: S3Config{
				Bucket:    "snap-drop",
				Endpoint:  "https://minio.local:9000",
				KeyPrefix: "snap-drop-uploads",
			},
			path: "a.jpg",
			want: "https://minio.local:9000/snap-drop/snap-drop-uploads/a.jpg",
		},
		{
			name: "явная публичная база",
			cfg: S3Config{
				Bucket:        "snap-drop",
				Endpoint:      "https://minio.local:9000",
				PublicBaseURL: "https://cdn.example.com/",
				KeyPrefix:     "snap-drop-uploads",
			},
			path: "a.jpg",
			want: "https://cdn.example.com/snap-drop-uploads/a.jpg",
		},
		{
			name: "без префикса ключей",
			cfg: S3Config{
				Bucket: "snap-drop",
				Region: "us-east-1",
			},
			path: "folder/a.jpg",
			want: "https://snap-drop.s3.us-east-1.amazonaws.com/folder/a.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewS3(tt.cfg)
			if err != nil {
				t.Fatalf("Ошибка NewS3: %v", err)
			}
			if got := b.PublicURL(tt.path); got != tt.want {
				t.Errorf("PublicURL = %q, ожидалось %q", got, tt.want)
			}
		})
	}
}

func TestS3_EndpointURL(t *testing.T) {
	b, err := NewS3(S3Config{Bucket: "snap-drop", Region: "eu-west-1"})
	if err != nil {
		t.Fatalf("Ошибка NewS3: %v", err)
	}
	want := "https://snap-drop.s3.eu-west-1.amazonaws.com"
	if got := b.EndpointURL(); got != want {
		t.Errorf("EndpointURL = %q, ожидалось %q", got, want)
	}

	b, err = NewS3(S3Config{Bucket: "snap-drop", Endpoint: "https://minio.local:9000"})
	if err != nil {
		t.Fatalf("Ошибка NewS3: %v", err)
	}
	if got := b.EndpointURL(); got != "https://minio.local:9000" {
		t.Errorf("EndpointURL = %q, ожидался endpoint из конфигурации", got)
	}
}

func TestNewS3_RequiresBucket(t *testing.T) {
	if _, err := NewS3(S3Config{}); err == nil {
		t.Error("NewS3 без bucket должен возвращать ошибку")
	}
}
