// Package templates suggests titles, opening lines and tags from built-in phrase sets.
package templates

import (
	"context"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/xhs-pilot/internal/domain"
	"github.com/bnema/xhs-pilot/internal/ports"
)

const (
	titleCount = 5
	tagCount   = 6
)

var titlePatterns = []string{
	"{count}个{topic}技巧，第{n}个绝了",
	"关于{topic}，这{count}点你一定要知道",
	"收藏！{count}个{topic}的实用建议",
	"{topic}到底怎么选？看完不纠结",
	"为什么你的{topic}总是不对？",
	"{topic}踩过的坑，希望你别再踩了",
	"后悔没早知道的{topic}经验",
	"真心推荐！{topic}的宝藏经验",
}

type phrases struct {
	hooks    []string
	closings []string
}

var noteTypePhrases = map[domain.NoteType]phrases{
	domain.NoteTypeImage: {
		hooks: []string{
			"姐妹们！这个{topic}真的太好用了，忍不住分享给你们～",
			"关于{topic}，我研究了很久终于找到最优解！",
		},
		closings: []string{
			"希望这篇{topic}分享对你有帮助！还有什么想了解的，评论区见～",
			"关于{topic}就分享到这里啦！如果你也有好的经验，欢迎在评论区交流！",
		},
	},
	domain.NoteTypeVideo: {
		hooks: []string{
			"1 分钟教你搞定{topic}！",
			"关于{topic}，千万别踩这些坑！",
		},
		closings: []string{
			"觉得有用就点个赞吧～关注我获取更多{topic}干货！",
		},
	},
	domain.NoteTypeLongform: {
		hooks: []string{
			"最近研究{topic}有了一些心得，整理成这篇长文分享给大家。",
		},
		closings: []string{
			"关于{topic}的分享就到这里。欢迎在评论区留下你的想法，一起讨论！",
		},
	},
}

var categoryTags = map[string][]string{
	"旅行": {"旅行攻略", "小众旅行地", "自由行", "周末去哪玩"},
	"美食": {"美食分享", "探店", "家常菜", "减脂餐"},
	"穿搭": {"穿搭分享", "日常穿搭", "通勤穿搭", "OOTD"},
	"护肤": {"护肤心得", "成分党", "敏感肌", "防晒"},
	"数码": {"数码好物", "效率工具", "测评", "手机摄影"},
	"学习": {"学习方法", "自律打卡", "读书笔记", "自我提升"},
	"职场": {"职场经验", "面试技巧", "副业", "职场干货"},
	"健身": {"健身打卡", "减脂", "居家健身", "健身入门"},
}

var universalTags = []string{"干货分享", "经验分享", "记录生活"}

// Static is a TemplateGenerator that fills built-in patterns with the topic.
type Static struct {
	random ports.Random
}

var _ ports.TemplateGenerator = (*Static)(nil)

func NewStatic(random ports.Random) *Static {
	if random == nil {
		seed := uint64(time.Now().UnixNano())
		random = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &Static{random: random}
}

func (s *Static) Generate(ctx context.Context, topic string, noteType domain.NoteType) (domain.Template, error) {
	if err := ctx.Err(); err != nil {
		return domain.Template{}, err
	}

	topic = strings.TrimSpace(topic)
	set, ok := noteTypePhrases[noteType]
	if !ok {
		set = noteTypePhrases[domain.NoteTypeImage]
	}

	fill := strings.NewReplacer(
		"{topic}", topic,
		"{count}", strconv.Itoa(3+s.pick(8)),
		"{n}", strconv.Itoa(1+s.pick(3)),
	)

	start := s.pick(len(titlePatterns))
	titles := make([]string, 0, titleCount)
	for i := range titleCount {
		pattern := titlePatterns[(start+i)%len(titlePatterns)]
		titles = append(titles, truncateRunes(fill.Replace(pattern), domain.MaxTitleLength))
	}

	return domain.Template{
		Titles:  titles,
		Hook:    fill.Replace(set.hooks[s.pick(len(set.hooks))]),
		Closing: fill.Replace(set.closings[s.pick(len(set.closings))]),
		Tags:    suggestTags(topic),
	}, nil
}

func (s *Static) pick(n int) int {
	i := int(s.random.Float64() * float64(n))
	if i >= n {
		return n - 1
	}
	return i
}

// suggestTags returns the tags of every category the topic mentions, then the
// universal ones.
func suggestTags(topic string) []string {
	var tags []string
	for _, category := range sortedCategories() {
		if strings.Contains(topic, category) {
			tags = append(tags, categoryTags[category]...)
		}
	}
	if topic != "" {
		tags = append([]string{topic}, tags...)
	}
	tags = append(tags, universalTags...)

	if len(tags) > tagCount {
		tags = tags[:tagCount]
	}
	return tags
}

func sortedCategories() []string {
	categories := make([]string, 0, len(categoryTags))
	for category := range categoryTags {
		categories = append(categories, category)
	}
	slices.Sort(categories)
	return categories
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
