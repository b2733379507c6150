package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiang/biz-crawlers/pkg/models"
)

const companyDetailFixture = `<html><body><div id="tabCmpyContent">
<table>
<tr><td>統一編號</td><td>12345678</td></tr>
<tr><td>公司名稱</td><td>測試股份有限公司<br>TEST CO., LTD.<a href="#">訂閱</a></td></tr>
<tr><td>負責人姓名</td><td>王小明</td></tr>
<tr><td>公司所在地</td><td>臺北市信義區松智路1號
電子地圖</td></tr>
<tr><td>公司狀況</td><td>核准設立</td></tr>
<tr><td>核准設立日期</td><td>113年5月20日</td></tr>
<tr><td>所營事業資料</td><td>F401010　電子商務 1<br>F401021　零售業 2</td></tr>
<tr><td>資本總額(元)</td><td>1,000,000</td></tr>
</table>
<table>
<tr><th>序號</th><th>職稱</th><th>姓名</th><th>所代表法人</th><th>出資額(元)</th></tr>
<tr><td>0001</td><td>董事長</td><td>王小明</td><td><a href="#" onclick="queryByNo('87654321','母公司股份有限公司')">母公司股份有限公司</a></td><td>500,000</td></tr>
<tr><td>0002</td><td>監察人</td><td>李大華</td><td></td><td>100,000</td></tr>
</table>
<table>
<tr><th>序號</th><th>姓名</th><th>到職日期</th></tr>
<tr><td>0001</td><td>陳經理</td><td>112年11月3日</td></tr>
</table>
</div></body></html>`

func TestParseDetailCompany(t *testing.T) {
	site := testSite(t)
	rec := ParseDetail([]byte(companyDetailFixture), models.KindCompany, site)
	require.GreaterOrEqual(t, rec.Len(), 3)

	t.Run("plain field", func(t *testing.T) {
		v, ok := rec.Get("統一編號")
		require.True(t, ok)
		assert.Equal(t, models.StringValue("12345678"), v)
	})

	t.Run("multi-name field drops link markup", func(t *testing.T) {
		v, ok := rec.Get("公司名稱")
		require.True(t, ok)
		require.Equal(t, models.ValNames, v.Kind)
		assert.Equal(t, []string{"測試股份有限公司", "TEST CO., LTD."}, v.Names)
	})

	t.Run("single name stays a string", func(t *testing.T) {
		v, ok := rec.Get("負責人姓名")
		require.True(t, ok)
		assert.Equal(t, models.StringValue("王小明"), v)
	})

	t.Run("address keeps only the first line, no whitespace", func(t *testing.T) {
		v, ok := rec.Get("公司所在地")
		require.True(t, ok)
		assert.Equal(t, models.StringValue("臺北市信義區松智路1號"), v)
	})

	t.Run("ROC date converts to Gregorian", func(t *testing.T) {
		v, ok := rec.Get("核准設立日期")
		require.True(t, ok)
		require.Equal(t, models.ValDate, v.Kind)
		assert.Equal(t, models.Date{Year: 2024, Month: 5, Day: 20}, *v.Date)
	})

	t.Run("business items split on code boundaries", func(t *testing.T) {
		v, ok := rec.Get("所營事業資料")
		require.True(t, ok)
		require.Equal(t, models.ValCodeList, v.Kind)
		require.Len(t, v.Codes, 2)
		assert.Equal(t, models.CodeItem{Code: "F401010", Description: "電子商務"}, v.Codes[0])
		assert.Equal(t, models.CodeItem{Code: "F401021", Description: "零售業"}, v.Codes[1])
	})

	t.Run("officer sub-table", func(t *testing.T) {
		v, ok := rec.Get(OfficersLabel)
		require.True(t, ok)
		require.Equal(t, models.ValOfficers, v.Kind)
		require.Len(t, v.Officers, 2)

		first := v.Officers[0]
		assert.Equal(t, "董事長", first.Title)
		assert.Equal(t, "王小明", first.Name)
		require.NotNil(t, first.Legal)
		assert.Equal(t, "87654321", first.Legal.ID)
		assert.Equal(t, "母公司股份有限公司", first.Legal.Name)

		assert.Nil(t, v.Officers[1].Legal, "empty legal-entity cell stays nil")
	})

	t.Run("manager sub-table", func(t *testing.T) {
		v, ok := rec.Get(ManagersLabel)
		require.True(t, ok)
		require.Equal(t, models.ValManagers, v.Kind)
		require.Len(t, v.Managers, 1)
		assert.Equal(t, "陳經理", v.Managers[0].Name)
		require.NotNil(t, v.Managers[0].OnboardDate)
		assert.Equal(t, models.Date{Year: 2023, Month: 11, Day: 3}, *v.Managers[0].OnboardDate)
	})
}

func TestParseDetailAbsentContainer(t *testing.T) {
	site := testSite(t)

	rec := ParseDetail([]byte("<html><body><p>nothing here</p></body></html>"), models.KindCompany, site)
	assert.Equal(t, 0, rec.Len(), "absent container yields an empty record, not an error")

	// A company page parsed as a business must also come back empty.
	rec = ParseDetail([]byte(companyDetailFixture), models.KindBusiness, site)
	assert.Equal(t, 0, rec.Len())
}

func TestParseBusinessItemsFallback(t *testing.T) {
	v := parseBusinessItems("未分類項目\n其他經營事項\n")
	require.Equal(t, models.ValNames, v.Kind)
	assert.Equal(t, []string{"未分類項目", "其他經營事項"}, v.Names)
}

func TestParseROCDate(t *testing.T) {
	d, ok := parseROCDate("113年5月20日")
	require.True(t, ok)
	assert.Equal(t, models.Date{Year: 2024, Month: 5, Day: 20}, d)

	_, ok = parseROCDate("2024-05-20")
	assert.False(t, ok)
	_, ok = parseROCDate("113年5月")
	assert.False(t, ok)
}
