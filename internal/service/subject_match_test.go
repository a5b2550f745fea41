package service

import (
	"strings"
	"testing"

	"cdas-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func presetWithIDs() []model.Subject {
	subjects := make([]model.Subject, len(model.PresetSubjects))
	copy(subjects, model.PresetSubjects)
	for i := range subjects {
		subjects[i].ID = uint(i + 1)
	}
	return subjects
}

func TestDetectSubject(t *testing.T) {
	subjects := presetWithIDs()
	cases := []struct {
		filename string
		want     string
	}{
		{"义务教育数学课程标准（2022年版）.docx", "数学"},
		{"2022_语文.pdf", "语文"},
		{"课标_道德与法治.txt", "道德与法治"},
		{"dir/sub/生物学_课程标准.docx", "生物学"},
		{"english.pdf", ""},
		{"README", ""},
	}
	for _, tc := range cases {
		t.Run(tc.filename, func(t *testing.T) {
			got := DetectSubject(tc.filename, subjects)
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.Name)
		})
	}
}

func TestDetectSubject_CandidateAfterFirstUnderscore(t *testing.T) {
	subjects := []model.Subject{{ID: 9, Name: "art"}}
	got := DetectSubject("2022_art.pdf", subjects)
	require.NotNil(t, got)
	assert.Equal(t, uint(9), got.ID)

	// 只有第一个 "_" 之后的整体才是候选名
	assert.NotNil(t, DetectSubject("a_b_art.pdf", subjects))
	assert.Nil(t, DetectSubject("a_b.pdf", []model.Subject{{ID: 1, Name: "b_c"}}))
}

func TestDetectSubject_FirstMatchWins(t *testing.T) {
	subjects := []model.Subject{{ID: 1, Name: "科学"}, {ID: 2, Name: "信息科技"}}
	got := DetectSubject("信息科技_科学.pdf", subjects)
	require.NotNil(t, got)
	assert.Equal(t, uint(1), got.ID)

	assert.Nil(t, DetectSubject("anything.pdf", nil))
	assert.Nil(t, DetectSubject("x.pdf", []model.Subject{{ID: 3, Name: ""}}))
}

func TestBuildReferenceContext(t *testing.T) {
	subjectID := uint(4)
	chunks := []model.ChunkRecord{
		{ID: "1-2-0", Page: 2, Text: "  光合作用\n是  植物 ", SubjectName: "生物学"},
		{ID: "1-3-0", Page: 3, Text: "text", SubjectID: &subjectID},
		{ID: "2-1-0", Text: "no page"},
	}
	got := BuildReferenceContext(chunks, 0)
	assert.Equal(t, strings.Join([]string{
		"[chunk_id=1-2-0 subject=生物学 page=2] 光合作用 是 植物",
		"[chunk_id=1-3-0 subject_id=4 page=3] text",
		"[chunk_id=2-1-0] no page",
	}, "\n"), got)

	assert.Equal(t, "[chunk_id=1-2-0 subject=生物学 page=2] 光合作用 是 植物", BuildReferenceContext(chunks, 1))
	assert.Empty(t, BuildReferenceContext(nil, 6))
}

func TestBuildReferenceContext_TruncatesByRunes(t *testing.T) {
	long := strings.Repeat("课", 400)
	got := BuildReferenceContext([]model.ChunkRecord{{ID: "1-1-0", Page: 1, Text: long}}, 6)
	assert.Equal(t, "[chunk_id=1-1-0 page=1] "+strings.Repeat("课", 360)+"...", got)

	exact := strings.Repeat("a", 360)
	assert.Equal(t, exact, summarizeText(exact, 360))
}

func TestBuildReferenceContext_DefaultLimit(t *testing.T) {
	chunks := make([]model.ChunkRecord, 10)
	for i := range chunks {
		chunks[i] = model.ChunkRecord{ID: "x", Page: 1, Text: "t"}
	}
	assert.Len(t, strings.Split(BuildReferenceContext(chunks, 0), "\n"), DefaultReferenceChunks)
}
