package export

import "testing"

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"429 Too Many Requests", true},
		{"503 Service Unavailable", true},
		{"rate limit exceeded", true},
		{"temporarily unavailable", true},
		{"401 unauthorized", false},
		{"invalid index name", false},
	}
	for _, tt := range tests {
		got := isRetryableError(errString(tt.msg))
		if got != tt.want {
			t.Errorf("isRetryableError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestIsRetryableError_Nil(t *testing.T) {
	if isRetryableError(nil) {
		t.Error("isRetryableError(nil) should be false")
	}
}

func TestConvertMetadata_Empty(t *testing.T) {
	if convertMetadata(nil) != nil {
		t.Error("convertMetadata(nil) should return nil")
	}
	if convertMetadata(map[string]interface{}{}) != nil {
		t.Error("convertMetadata(empty) should return nil")
	}
}

func TestConvertMetadata_Populated(t *testing.T) {
	s := convertMetadata(map[string]interface{}{"cluster_index": 3, "within_mse": 0.5})
	if s == nil {
		t.Fatal("convertMetadata() returned nil for populated map")
	}
	if _, ok := s.Fields["cluster_index"]; !ok {
		t.Error("expected cluster_index field in converted struct")
	}
}

func TestToQdrantValue(t *testing.T) {
	if v := toQdrantValue("red"); v.GetStringValue() != "red" {
		t.Errorf("toQdrantValue(string) = %v, want red", v)
	}
	if v := toQdrantValue(true); !v.GetBoolValue() {
		t.Error("toQdrantValue(true) should set BoolValue")
	}
	if v := toQdrantValue(int64(7)); v.GetIntegerValue() != 7 {
		t.Errorf("toQdrantValue(int64) = %v, want 7", v)
	}
	if v := toQdrantValue(3.14); v.GetDoubleValue() != 3.14 {
		t.Errorf("toQdrantValue(float64) = %v, want 3.14", v)
	}
	if v := toQdrantValue([]int{1, 2}); v != nil {
		t.Errorf("toQdrantValue(unsupported) = %v, want nil", v)
	}
}

func TestIntDoubleValue(t *testing.T) {
	if v := intValue(42); v.GetIntegerValue() != 42 {
		t.Errorf("intValue(42) = %v, want 42", v)
	}
	if v := doubleValue(1.5); v.GetDoubleValue() != 1.5 {
		t.Errorf("doubleValue(1.5) = %v, want 1.5", v)
	}
}

// errString is a minimal error implementation for table-driven tests.
type errString string

func (e errString) Error() string { return string(e) }
