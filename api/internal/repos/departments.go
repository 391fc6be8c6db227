package repos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"municipal-complaint-service/api/internal/models"
)

type DepartmentsRepo struct {
	pool *pgxpool.Pool
}

func NewDepartmentsRepo(pool *pgxpool.Pool) *DepartmentsRepo {
	return &DepartmentsRepo{pool: pool}
}

const departmentColumns = `department_id, code, name, description, group_chat_id, keywords, created_at`

func scanDepartment(row rowScanner) (models.Department, error) {
	var d models.Department
	err := row.Scan(&d.DepartmentID, &d.Code, &d.Name, &d.Description, &d.GroupChatID, &d.Keywords, &d.CreatedAt)
	return d, err
}

func (r *DepartmentsRepo) GetByID(ctx context.Context, departmentID uuid.UUID) (models.Department, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+departmentColumns+`
		FROM departments
		WHERE department_id = $1
	`, departmentID)
	return scanDepartment(row)
}

func (r *DepartmentsRepo) GetByCode(ctx context.Context, code string) (models.Department, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+departmentColumns+`
		FROM departments
		WHERE code = $1
	`, strings.ToLower(strings.TrimSpace(code)))
	return scanDepartment(row)
}

func (r *DepartmentsRepo) GetByGroupChatID(ctx context.Context, groupChatID string) (models.Department, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+departmentColumns+`
		FROM departments
		WHERE group_chat_id = $1
	`, groupChatID)
	return scanDepartment(row)
}

func (r *DepartmentsRepo) List(ctx context.Context) ([]models.Department, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+departmentColumns+`
		FROM departments
		ORDER BY code ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// BindGroupChat associates a platform group chat with a department so
// notifications can reach the right room.
func (r *DepartmentsRepo) BindGroupChat(ctx context.Context, departmentID uuid.UUID, groupChatID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE departments SET group_chat_id = $2 WHERE department_id = $1
	`, departmentID, groupChatID)
	return err
}

// SeedDefaults inserts the municipal department catalog when it is not
// already present. Codes are stable across environments.
func (r *DepartmentsRepo) SeedDefaults(ctx context.Context) error {
	for _, d := range DefaultDepartments() {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO departments (department_id, code, name, description, group_chat_id, keywords, created_at)
			VALUES ($1, $2, $3, $4, '', $5, now())
			ON CONFLICT (code) DO NOTHING
		`, uuid.New(), d.Code, d.Name, d.Description, d.Keywords)
		if err != nil {
			return err
		}
	}
	return nil
}

// DefaultDepartments is the built-in catalog. The secretary office is the
// catch-all when classification cannot decide.
func DefaultDepartments() []models.Department {
	return []models.Department{
		{Code: "secretary", Name: "สำนักปลัดเทศบาล", Description: "เรื่องทั่วไปและงานธุรการ", Keywords: []string{"ทั่วไป", "เอกสาร", "ร้องเรียนเจ้าหน้าที่", "ทะเบียน"}},
		{Code: "finance", Name: "กองคลัง", Description: "ภาษี ค่าธรรมเนียม การเงิน", Keywords: []string{"ภาษี", "ค่าธรรมเนียม", "ใบเสร็จ", "ค่าขยะ"}},
		{Code: "engineering", Name: "กองช่าง", Description: "ถนน ไฟฟ้าสาธารณะ น้ำท่วม สิ่งก่อสร้าง", Keywords: []string{"ถนน", "ไฟฟ้า", "ไฟดับ", "ท่อ", "น้ำท่วม", "ฟุตบาท", "ก่อสร้าง"}},
		{Code: "health", Name: "กองสาธารณสุขและสิ่งแวดล้อม", Description: "ขยะ สิ่งแวดล้อม สัตว์จรจัด สุขอนามัย", Keywords: []string{"ขยะ", "กลิ่นเหม็น", "หมาจรจัด", "ยุง", "สิ่งแวดล้อม"}},
		{Code: "education", Name: "กองการศึกษา", Description: "โรงเรียน ศูนย์พัฒนาเด็กเล็ก กิจกรรม", Keywords: []string{"โรงเรียน", "เด็ก", "การศึกษา", "สนามกีฬา"}},
		{Code: "strategy", Name: "กองยุทธศาสตร์และงบประมาณ", Description: "แผนงาน งบประมาณ โครงการ", Keywords: []string{"งบประมาณ", "โครงการ", "แผนพัฒนา"}},
	}
}
