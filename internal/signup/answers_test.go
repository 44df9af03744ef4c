package signup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswers_Merge(t *testing.T) {
	base := Answers{Name: strp("Ana"), Phone: strp("1199")}
	got := base.Merge(Answers{Phone: strp("1188"), Email: strp("a@b.com")})

	assert.Equal(t, "Ana", *got.Name)
	assert.Equal(t, "1188", *got.Phone)
	assert.Equal(t, "a@b.com", *got.Email)
	assert.Nil(t, got.CPF)
	// o original não muda
	assert.Equal(t, "1199", *base.Phone)
}

func TestAnswers_MergeEmptyStringOverwrites(t *testing.T) {
	got := Answers{Address: strp("Rua A")}.Merge(Answers{Address: strp("")})
	require.NotNil(t, got.Address)
	assert.Equal(t, "", *got.Address)
}

func TestAnswers_IsEmpty(t *testing.T) {
	assert.True(t, Answers{}.IsEmpty())
	assert.False(t, Answers{PhotoURL: strp("")}.IsEmpty())
}

func TestNormalizeAnswers(t *testing.T) {
	in := Answers{
		Name:    strp("  <b>Ana</b> D'Ávila "),
		Email:   strp(" Ana@Example.COM "),
		CPF:     strp("123.456.789-00"),
		Address: strp(`Rua <script>alert(1)</script>das Flores & Cia`),
	}
	got := NormalizeAnswers(in)

	assert.Equal(t, "Ana D'Ávila", *got.Name)
	assert.Equal(t, "ana@example.com", *got.Email)
	assert.Equal(t, "12345678900", *got.CPF)
	assert.Equal(t, "Rua das Flores & Cia", *got.Address)
	assert.Nil(t, got.Phone)
	assert.Equal(t, "  <b>Ana</b> D'Ávila ", *in.Name)
}

func TestMissingRequired(t *testing.T) {
	assert.Empty(t, MissingRequired(NormalizeAnswers(fullAnswers("123.456.789-00"))))

	got := MissingRequired(NormalizeAnswers(Answers{Name: strp("   "), CPF: strp("123")}))
	assert.Equal(t, []string{"name", "phone", "cpf", "birth_date"}, got)
}

func TestNormalizeAnswers_BirthDate(t *testing.T) {
	cases := map[string]string{
		"1990-05-20":   "1990-05-20",
		" 20/05/1990 ": "1990-05-20",
		"20/5/1990":    "20/5/1990",
		"ontem":        "ontem",
		"1990-02-30":   "1990-02-30",
	}
	for in, want := range cases {
		got := NormalizeAnswers(Answers{BirthDate: strp(in)})
		assert.Equal(t, want, *got.BirthDate, in)
	}
}

func TestMissingRequired_RejectsMalformedFields(t *testing.T) {
	cases := []struct {
		name  string
		patch Answers
		want  []string
	}{
		{"short phone", Answers{Phone: strp("123")}, []string{"phone"}},
		{"phone with letters only", Answers{Phone: strp("não tenho")}, []string{"phone"}},
		{"free text birth date", Answers{BirthDate: strp("ontem")}, []string{"birth_date"}},
		{"impossible birth date", Answers{BirthDate: strp("1990-02-30")}, []string{"birth_date"}},
		{"future birth date", Answers{BirthDate: strp("2999-01-01")}, []string{"birth_date"}},
		{"too old birth date", Answers{BirthDate: strp("1850-01-01")}, []string{"birth_date"}},
		{"brazilian birth date", Answers{BirthDate: strp("20/05/1990")}, nil},
		{"phone with country code", Answers{Phone: strp("+55 (47) 99999-8888")}, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := NormalizeAnswers(fullAnswers("123.456.789-00").Merge(c.patch))
			assert.Equal(t, c.want, MissingRequired(a))
		})
	}
}

func TestIsValidPhone(t *testing.T) {
	assert.True(t, IsValidPhone("(47) 99999-8888"))
	assert.True(t, IsValidPhone("4733334444"))
	assert.True(t, IsValidPhone("5547999998888"))
	assert.False(t, IsValidPhone("999998888"))
	assert.False(t, IsValidPhone("55479999988881"))
	assert.False(t, IsValidPhone(""))
}
