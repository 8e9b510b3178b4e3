package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	body := "first line\n![board](https://ipfs.skatehive.app/ipfs/QmA)\nsecond line\n<iframe src=\"https://ipfs.skatehive.app/ipfs/QmB\"></iframe>"

	text, media := Split(body)
	assert.Equal(t, "first line\nsecond line", text)
	assert.Equal(t, "![board](https://ipfs.skatehive.app/ipfs/QmA)\n<iframe src=\"https://ipfs.skatehive.app/ipfs/QmB\"></iframe>", media)
}

func TestSplit_TextOnly(t *testing.T) {
	text, media := Split("  just words  ")
	assert.Equal(t, "just words", text)
	assert.Empty(t, media)
	assert.Empty(t, MediaItems(media))
}

func TestMediaItems(t *testing.T) {
	media := "![kickflip](https://ipfs.skatehive.app/ipfs/QmImg)\n" +
		"<iframe src=\"https://gateway.pinata.cloud/ipfs/QmPinata\"></iframe>\n" +
		"<iframe src=\"https://ipfs.skatehive.app/ipfs/QmVid\"></iframe>\n" +
		"<iframe src=\"https://www.youtube.com/embed/abc\"></iframe>\n" +
		"<iframe src=\"https://3speak.tv/embed?v=clip\" onload=\"alert(1)\"></iframe>"

	items := MediaItems(media)
	require.Len(t, items, 4)

	assert.Equal(t, Media{Kind: MediaImage, Alt: "kickflip", URL: "https://ipfs.skatehive.app/ipfs/QmImg"}, items[0])
	assert.Equal(t, Media{Kind: MediaVideo, URL: IPFSGateway + "QmPinata"}, items[1])
	assert.Equal(t, Media{Kind: MediaVideo, URL: "https://ipfs.skatehive.app/ipfs/QmVid"}, items[2])

	assert.Equal(t, MediaEmbed, items[3].Kind)
	assert.Contains(t, items[3].HTML, "<iframe")
	assert.Contains(t, items[3].HTML, "3speak.tv/embed")
	assert.NotContains(t, items[3].HTML, "onload")
}

func TestMediaItems_UnsafeEmbedDropped(t *testing.T) {
	items := MediaItems(`<iframe src="javascript:alert(1)"></iframe>`)
	assert.Empty(t, items)
}
