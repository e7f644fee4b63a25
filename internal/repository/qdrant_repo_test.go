package repository

import (
	"testing"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
)

func TestCollectionVectorSize(t *testing.T) {
	withVectors := func(v *pb.VectorsConfig) *pb.CollectionInfo {
		return &pb.CollectionInfo{Config: &pb.CollectionConfig{Params: &pb.CollectionParams{VectorsConfig: v}}}
	}
	tests := []struct {
		name string
		info *pb.CollectionInfo
		want uint64
	}{
		{"nil info", nil, 0},
		{"no vectors", withVectors(nil), 0},
		{"single", withVectors(&pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{Size: 768}}}), 768},
		{"named", withVectors(&pb.VectorsConfig{Config: &pb.VectorsConfig_ParamsMap{ParamsMap: &pb.VectorParamsMap{
			Map: map[string]*pb.VectorParams{"text": {Size: 1024}},
		}}}), 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := collectionVectorSize(tt.info); got != tt.want {
				t.Errorf("collectionVectorSize() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDocumentPayloadValues(t *testing.T) {
	p := &DocumentPayload{DocumentID: "d", OwnerID: "o", DocumentType: "passport", FileName: "f.png", Excerpt: "text"}
	values := p.values()
	if len(values) != 5 {
		t.Fatalf("payload has %d fields", len(values))
	}
	if got := values["document_type"].GetStringValue(); got != "passport" {
		t.Errorf("document_type = %q", got)
	}
	for _, field := range indexedPayloadFields {
		if _, ok := values[field]; !ok {
			t.Errorf("indexed field %s missing from payload", field)
		}
	}

	id := uuid.New()
	if pointUUID(id).GetUuid() != id.String() {
		t.Error("point id does not carry the uuid")
	}
}
