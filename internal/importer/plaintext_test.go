package importer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlaintext(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "entities", in: "<p>Tom&nbsp;&amp;&nbsp;Jerry &lt;3 &quot;cheese&quot; &gt; milk</p>", want: "Tom & Jerry <3 \"cheese\" > milk"},
		{name: "blocks split words", in: "<div>milk</div><div>eggs</div><ul><li>bread</li><li>jam</li></ul>", want: "milk eggs bread jam"},
		{name: "inline keeps words", in: "<p>Gro<b>cery</b> list</p>", want: "Grocery list"},
		{name: "script and style dropped", in: "<style>p{color:red}</style><p>kept</p><script>alert(1)</script>", want: "kept"},
		{name: "whitespace collapsed", in: "  <pre>a\n\n\tb   c </pre>  ", want: "a b c"},
		{name: "line breaks", in: "one<br/>two<br>three", want: "one two three"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Plaintext(tt.in))
		})
	}
}

func TestPlaintextIsDeterministic(t *testing.T) {
	in := `<div class="en-note"><h1>Trip</h1><p>Pack &amp; go</p><img src="/api/v1/files/u1_ab.png"/><span class="media-missing">missing attachment</span></div>`
	first := Plaintext(in)
	require.Equal(t, first, Plaintext(in))
	require.Equal(t, "Trip Pack & go missing attachment", first)
}
