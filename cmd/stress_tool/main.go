package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

var httpClient *http.Client

func init() {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   30 * time.Second,
	}
}

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

type nodeRef struct {
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
}

type sessionView struct {
	ID    string    `json:"id"`
	Roots []nodeRef `json:"roots"`
}

type stats struct {
	sessions atomic.Int64
	reloads  atomic.Int64
	failures atomic.Int64
}

// 模拟多个匿名观看者同时打开 feed，并反复重新加载每个根节点的回复
func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base URL")
	viewers := flag.Int("viewers", 200, "concurrent viewers")
	author := flag.String("author", "peak.snaps", "feed container author")
	permlink := flag.String("permlink", "", "feed container permlink")
	rounds := flag.Int("rounds", 3, "reload rounds per root")
	flag.Parse()

	if *permlink == "" {
		fmt.Println("need -permlink of the feed container post")
		return
	}

	fmt.Printf("开始压测：%d 个观看者打开 @%s/%s，每个根节点重新加载 %d 轮...\n", *viewers, *author, *permlink, *rounds)

	var st stats
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *viewers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runViewer(*baseURL, nodeRef{Author: *author, Permlink: *permlink}, *rounds, &st)
		}()
	}

	wg.Wait()
	duration := time.Since(start)
	requests := st.sessions.Load() + st.reloads.Load() + st.failures.Load()

	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("会话数: %d\n", st.sessions.Load())
	fmt.Printf("重新加载: %d\n", st.reloads.Load())
	fmt.Printf("失败请求: %d\n", st.failures.Load())
	fmt.Printf("QPS: %.2f\n", float64(requests)/duration.Seconds())
	fmt.Println("--------------------------------------------------")
}

func runViewer(baseURL string, feed nodeRef, rounds int, st *stats) {
	var view sessionView
	if err := call(http.MethodPost, baseURL+"/sessions", map[string]interface{}{"feed": feed}, &view); err != nil {
		st.failures.Add(1)
		return
	}
	st.sessions.Add(1)
	defer call(http.MethodDelete, baseURL+"/sessions/"+view.ID, nil, nil)

	for r := 0; r < rounds; r++ {
		for _, root := range view.Roots {
			// feed 根节点是顶层节点，toggle 只会记录打开对话的请求；这里用 reload 触发真实加载
			url := fmt.Sprintf("%s/sessions/%s/nodes/%s/%s/reload", baseURL, view.ID, root.Author, root.Permlink)
			if err := call(http.MethodPost, url, nil, nil); err != nil {
				st.failures.Add(1)
				continue
			}
			st.reloads.Add(1)
		}
	}
}

func call(method, url string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return err
	}
	if env.Code != 0 {
		return fmt.Errorf("%s %s: code %d", method, url, env.Code)
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
