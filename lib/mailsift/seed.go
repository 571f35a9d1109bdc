package mailsift

// SeedSamples returns the fixed corpus used to fit the fallback model when no
// trained artifact is available, 4 spam and 4 ham Vietnamese emails.
func SeedSamples() []Sample {
	return []Sample{
		{Text: "Nhận quà tặng khủng, bấm link để nhận thưởng ngay", Spam: true},
		{Text: "Chúc mừng trúng iPhone 15, xác nhận tại đây", Spam: true},
		{Text: "Vay tiền nhanh lãi suất 0%, click ngay", Spam: true},
		{Text: "Miễn phí 100% phí dịch vụ, cập nhật theo link", Spam: true},
		{Text: "Mời bạn tham dự phỏng vấn vào thứ Hai tuần tới", Spam: false},
		{Text: "Đính kèm báo cáo doanh số tháng 10", Spam: false},
		{Text: "Lịch họp dự án lúc 9h sáng mai", Spam: false},
		{Text: "Chúc mừng bạn đã trúng tuyển, vui lòng xác nhận thời gian", Spam: false},
	}
}
