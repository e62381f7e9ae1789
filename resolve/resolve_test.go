package resolve

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestServerWins(t *testing.T) {
	client := Record{"quantity": 10, "location": "A-01"}
	server := Record{"quantity": 20, "location": "A-02"}

	got := ServerWins{}.Resolve(client, server)
	if !reflect.DeepEqual(got, server) {
		t.Errorf("ServerWins.Resolve = %v, want server version %v", got, server)
	}
}

func TestClientWins(t *testing.T) {
	client := Record{"quantity": 10}
	server := Record{"quantity": 20}

	got := ClientWins{}.Resolve(client, server)
	if !reflect.DeepEqual(got, client) {
		t.Errorf("ClientWins.Resolve = %v, want client version %v", got, client)
	}
}

func TestMergeQuantity(t *testing.T) {
	tests := []struct {
		name   string
		client Record
		server Record
		want   Record
	}{
		{
			name:   "sums quantities onto server fields",
			client: Record{"quantity": 10, "counted_by": "alice"},
			server: Record{"quantity": 20, "counted_by": "bob", "bin": "B-07"},
			want:   Record{"quantity": float64(30), "counted_by": "bob", "bin": "B-07"},
		},
		{
			name:   "json decoded float quantities",
			client: Record{"quantity": float64(2.5)},
			server: Record{"quantity": float64(1.5)},
			want:   Record{"quantity": float64(4)},
		},
		{
			name:   "json.Number quantities",
			client: Record{"quantity": json.Number("3")},
			server: Record{"quantity": json.Number("4")},
			want:   Record{"quantity": float64(7)},
		},
		{
			name:   "missing client quantity falls back to server",
			client: Record{},
			server: Record{"quantity": 20},
			want:   Record{"quantity": 20},
		},
		{
			name:   "missing server quantity falls back to server",
			client: Record{"quantity": 10},
			server: Record{"bin": "B-07"},
			want:   Record{"bin": "B-07"},
		},
		{
			name:   "both empty falls back to server unchanged",
			client: Record{},
			server: Record{},
			want:   Record{},
		},
		{
			name:   "non-numeric quantity falls back to server",
			client: Record{"quantity": "ten"},
			server: Record{"quantity": 20},
			want:   Record{"quantity": 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeQuantity{}.Resolve(tt.client, tt.server)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MergeQuantity.Resolve = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMergeQuantityDoesNotMutateInputs(t *testing.T) {
	client := Record{"quantity": 10}
	server := Record{"quantity": 20, "bin": "B-07"}

	MergeQuantity{}.Resolve(client, server)

	if client["quantity"] != 10 {
		t.Error("client record was mutated")
	}
	if server["quantity"] != 20 {
		t.Error("server record was mutated")
	}
}

func TestByName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"server-wins", "server-wins"},
		{"client-wins", "client-wins"},
		{"merge-quantity", "merge-quantity"},
		{"", "server-wins"},
		{"unknown", "server-wins"},
	}

	for _, tt := range tests {
		if got := ByName(tt.name).Name(); got != tt.want {
			t.Errorf("ByName(%q).Name() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
