//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package datagen fills development source databases with plausible POS
// and mini-program data.
package datagen

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
)

// Faker generates source values on top of gofakeit.
type Faker struct {
	faker *gofakeit.Faker
}

// NewFaker creates a new Faker with a random seed.
func NewFaker() *Faker {
	return &Faker{
		faker: gofakeit.New(uint64(time.Now().UnixNano())),
	}
}

// NewFakerWithSeed creates a new Faker with a specific seed for reproducibility.
func NewFakerWithSeed(seed uint64) *Faker {
	return &Faker{
		faker: gofakeit.New(seed),
	}
}

// Place is a district the generated shops are spread over.
type Place struct {
	Province string
	City     string
	District string
	Lng      float64
	Lat      float64
}

// Places are the districts shops are generated in.
var Places = []Place{
	{"广东省", "深圳市", "南山区", 113.930, 22.533},
	{"广东省", "深圳市", "福田区", 114.055, 22.522},
	{"广东省", "广州市", "天河区", 113.361, 23.124},
	{"上海市", "上海市", "浦东新区", 121.544, 31.221},
	{"上海市", "上海市", "徐汇区", 121.437, 31.188},
	{"北京市", "北京市", "朝阳区", 116.443, 39.921},
	{"浙江省", "杭州市", "西湖区", 120.130, 30.259},
	{"四川省", "成都市", "武侯区", 104.043, 30.642},
}

var (
	surnames   = []string{"王", "李", "张", "刘", "陈", "杨", "黄", "赵", "吴", "周", "徐", "孙"}
	givenNames = []string{"伟", "芳", "娜", "敏", "静", "磊", "洋", "勇", "艳", "杰", "涛", "明", "超", "霞"}
	nicknames  = []string{"吃货", "小热狗", "阿狗", "晴天", "Momo", "Leo", "Coco", "大白"}
	menu       = []string{"经典热狗", "芝士热狗", "双肠热狗", "辣味热狗", "薯条", "鸡块", "可乐", "柠檬茶", "冰淇淋", "玉米杯"}
	categories = []string{"热狗", "小食", "饮品", "甜品", "套餐"}
)

// PersonName returns a two or three character Chinese name.
func (f *Faker) PersonName() string {
	name := Choose(f, surnames) + Choose(f, givenNames)
	if f.Bool() {
		name += Choose(f, givenNames)
	}
	return name
}

// Nickname returns a WeChat style nickname.
func (f *Faker) Nickname() string {
	return Choose(f, nicknames) + f.Digits(3)
}

// Phone returns an 11 digit mainland mobile number.
func (f *Faker) Phone() string {
	return "1" + Choose(f, []string{"3", "5", "7", "8", "9"}) + f.Digits(9)
}

// OpenID returns a WeChat openId.
func (f *Faker) OpenID() string {
	return "o" + f.faker.LetterN(27)
}

// ShopName names a shop in district.
func (f *Faker) ShopName(p Place) string {
	return fmt.Sprintf("热狗2030%s%s店", strings.TrimSuffix(p.District, "区"), f.faker.StreetName())
}

// Address returns a street address inside p.
func (f *Faker) Address(p Place) string {
	return fmt.Sprintf("%s%s%s%s号", p.Province, p.City, p.District, f.Digits(3))
}

// Location returns an encoded coordinate near p. Both "lat,lng" and
// "lng,lat" orders occur in the sources, and some rows carry none.
func (f *Faker) Location(p Place) *string {
	if f.Int(1, 20) == 1 {
		return nil
	}
	lng := p.Lng + f.Float64(-0.05, 0.05)
	lat := p.Lat + f.Float64(-0.05, 0.05)
	s := fmt.Sprintf("%.6f,%.6f", lat, lng)
	if f.Bool() {
		s = fmt.Sprintf("%.6f,%.6f", lng, lat)
	}
	return &s
}

// MenuItem returns a product name.
func (f *Faker) MenuItem() string {
	return Choose(f, menu)
}

// Money returns an amount between min and max with two decimals.
func (f *Faker) Money(min, max float64) decimal.Decimal {
	return decimal.NewFromFloat(f.faker.Price(min, max)).Round(2)
}

// DateRange generates a random time within a range.
func (f *Faker) DateRange(start, end time.Time) time.Time {
	return f.faker.DateRange(start, end)
}

// Int generates a random integer between min and max (inclusive).
func (f *Faker) Int(min, max int) int {
	return f.faker.IntRange(min, max)
}

// Float64 generates a random float64 between min and max.
func (f *Faker) Float64(min, max float64) float64 {
	return f.faker.Float64Range(min, max)
}

// Bool generates a random boolean.
func (f *Faker) Bool() bool {
	return f.faker.Bool()
}

// Digits generates a random string of digits of length n.
func (f *Faker) Digits(n int) string {
	return f.faker.DigitN(uint(n))
}

// Choose returns a random element from the given slice.
func Choose[T any](f *Faker, items []T) T {
	if len(items) == 0 {
		var zero T
		return zero
	}
	return items[f.Int(0, len(items)-1)]
}

// ChooseWeighted returns a random element based on weights.
func ChooseWeighted[T any](f *Faker, items []T, weights []int) T {
	if len(items) == 0 || len(weights) == 0 {
		var zero T
		return zero
	}

	totalWeight := 0
	for _, w := range weights {
		totalWeight += w
	}

	r := f.Int(1, totalWeight)
	cumulative := 0
	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return items[i]
		}
	}

	return items[len(items)-1]
}
