package browser

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bnema/xhs-pilot/internal/domain"
)

// interactStateScript reads note.noteDetailMap[feedID].note.interactInfo from
// window.__INITIAL_STATE__ and returns {liked, collected} as JSON, or '' when the
// note is not in the state.
const interactStateScript = `(fid) => {
	const s = window.__INITIAL_STATE__;
	if (!s || !s.note || !s.note.noteDetailMap) return '';
	let map = s.note.noteDetailMap;
	if (map.value !== undefined) map = map.value;
	else if (map._value !== undefined) map = map._value;
	const detail = map[fid];
	if (!detail || !detail.note || !detail.note.interactInfo) return '';
	const info = detail.note.interactInfo;
	return JSON.stringify({liked: !!info.liked, collected: !!info.collected});
}`

const (
	likeActiveSelector    = ".interact-container .left .like-wrapper.active, .interact-container .left .like-wrapper.liked"
	collectActiveSelector = ".interact-container .left .collect-wrapper.active, .interact-container .left .collect-wrapper.collected"
)

// parseInteractState decodes the output of interactStateScript. ok is false when
// the script found nothing usable.
func parseInteractState(raw string) (domain.InteractState, bool) {
	if strings.TrimSpace(raw) == "" {
		return domain.InteractState{}, false
	}

	var state domain.InteractState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return domain.InteractState{}, false
	}
	return state, true
}

// interactStateFromHTML reads the highlighted buttons of the rendered note.
func interactStateFromHTML(html string) domain.InteractState {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.InteractState{}
	}

	return domain.InteractState{
		Liked:     doc.Find(likeActiveSelector).Length() > 0,
		Collected: doc.Find(collectActiveSelector).Length() > 0,
	}
}
