package crawler

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	mu    sync.Mutex
	cache map[string][]byte
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, &mockError{message: "cache miss"}
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	return nil
}

// expire drops key as if its TTL had passed
func (m *MockCacheService) expire(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
}

type mockError struct {
	message string
}

func (e *mockError) Error() string {
	return e.message
}

// mockFetcher returns a canned body or error and counts calls
type mockFetcher struct {
	body  string
	err   error
	calls int
}

func (m *mockFetcher) Fetch(ctx context.Context, url string) (io.Reader, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return strings.NewReader(m.body), nil
}

// listingHTML mimics the hot board: one notice row, three posts, one ad row
// without a title anchor and one row whose anchor carries no numeric id.
const listingHTML = `
<html><body>
<table class="bd_lst">
  <thead><tr><th>번호</th><th>카테고리</th><th>제목</th><th>날짜</th><th>조회</th></tr></thead>
  <tbody>
    <tr class="notice">
      <td class="no">공지</td>
      <td class="cate">공지</td>
      <td class="title"><a href="/hot/999">필독 공지사항</a></td>
      <td class="time">24.01.01</td>
      <td class="m_no">99,999</td>
    </tr>
    <tr>
      <td class="no">1</td>
      <td class="cate"> 이슈 </td>
      <td class="title">
        <a href="/hot/101"> 첫 번째 인기글 </a>
        <a class="replyNum" href="/hot/101#comment">1,024</a>
      </td>
      <td class="time">12:34</td>
      <td class="m_no">1,234</td>
    </tr>
    <tr>
      <td class="no">2</td>
      <td class="cate">스퀘어</td>
      <td class="title"><a href="https://theqoo.net/hot/102?page=1">두 번째 인기글</a></td>
      <td class="time">11:00</td>
      <td class="m_no">조회</td>
    </tr>
    <tr>
      <td class="title"><a href="/hot/103">only a link</a></td>
    </tr>
    <tr class="ad">
      <td class="title"><span>광고</span></td>
    </tr>
    <tr>
      <td class="title"><a href="/hot/best">no id</a></td>
    </tr>
  </tbody>
</table>
</body></html>`
