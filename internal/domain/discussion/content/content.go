// Package content 把帖子正文拆分为文字与媒体两部分，并对媒体行分类
// 不做 markdown 渲染，渲染由前端完成
package content

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// IPFSGateway 视频统一改写到的 IPFS 网关
const IPFSGateway = "https://ipfs.skatehive.app/ipfs/"

// MediaKind 媒体类型
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaEmbed    MediaKind = "embed"
	MediaMarkdown MediaKind = "markdown"
)

// Media 一行媒体内容
type Media struct {
	Kind MediaKind `json:"kind"`
	URL  string    `json:"url,omitempty"`
	Alt  string    `json:"alt,omitempty"`
	HTML string    `json:"html,omitempty"` // embed 为净化后的 iframe，markdown 为原始行
}

var (
	imagePattern  = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)[^)]*\)`)
	iframeSrc     = regexp.MustCompile(`(?i)src=["']([^"']+)["']`)
	ipfsHash      = regexp.MustCompile(`/ipfs/([\w-]+)`)
	youtubeEmbeds = []string{"youtube.com/embed/", "youtube-nocookie.com/embed/", "youtu.be/"}
)

var embedPolicy = newEmbedPolicy()

func newEmbedPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("iframe")
	p.AllowAttrs("src", "width", "height", "frameborder", "allowfullscreen", "allow", "title").OnElements("iframe")
	p.AllowURLSchemes("https")
	p.RequireParseableURLs(true)
	return p
}

func isMediaLine(line string) bool {
	return strings.Contains(line, "![") || strings.Contains(line, "<iframe")
}

// Split 按行拆分：含图片或 iframe 的行归入 media，其余归入 text
func Split(body string) (text, media string) {
	var textLines, mediaLines []string
	for _, line := range strings.Split(body, "\n") {
		if isMediaLine(line) {
			mediaLines = append(mediaLines, strings.TrimSpace(line))
			continue
		}
		textLines = append(textLines, line)
	}
	return strings.TrimSpace(strings.Join(textLines, "\n")), strings.Join(mediaLines, "\n")
}

// MediaItems 对 media 中的每一行分类，YouTube iframe 被跳过（前端自动嵌入）
func MediaItems(media string) []Media {
	items := []Media{}
	for _, line := range strings.Split(media, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if item, ok := classify(line); ok {
			items = append(items, item)
		}
	}
	return items
}

func classify(line string) (Media, bool) {
	if strings.Contains(line, "<iframe") && strings.Contains(line, "</iframe>") {
		return classifyIframe(line)
	}
	if m := imagePattern.FindStringSubmatch(line); m != nil {
		return Media{Kind: MediaImage, Alt: m[1], URL: m[2]}, true
	}
	return Media{Kind: MediaMarkdown, HTML: line}, true
}

func classifyIframe(line string) (Media, bool) {
	if m := iframeSrc.FindStringSubmatch(line); m != nil {
		url := m[1]
		for _, yt := range youtubeEmbeds {
			if strings.Contains(url, yt) {
				return Media{}, false
			}
		}
		if strings.Contains(url, "gateway.pinata.cloud/ipfs/") {
			if h := ipfsHash.FindStringSubmatch(url); h != nil {
				return Media{Kind: MediaVideo, URL: IPFSGateway + h[1]}, true
			}
		} else if strings.Contains(url, "ipfs.skatehive.app/ipfs/") {
			return Media{Kind: MediaVideo, URL: url}, true
		}
	}

	html := embedPolicy.Sanitize(line)
	if !strings.Contains(html, "src=") {
		return Media{}, false
	}
	return Media{Kind: MediaEmbed, HTML: html}, true
}
